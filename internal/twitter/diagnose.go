package twitter

import (
	"encoding/json"
	"fmt"
	"strings"

	gotwitter "github.com/dghubble/go-twitter/twitter"
)

// Diagnose reads the platform's error bodies: v2 problem documents
// ({"title","detail"}) and v1.1 {"errors":[{code,message}]}. Unknown bodies
// give "" so callers fall back to the raw text.
func Diagnose(status int, body []byte) string {
	var v2 struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal(body, &v2); err == nil && (v2.Title != "" || v2.Detail != "") {
		return strings.TrimSpace(fmt.Sprintf("%s: %s", v2.Title, v2.Detail))
	}

	var v1 gotwitter.APIError
	if err := json.Unmarshal(body, &v1); err == nil && !v1.Empty() {
		parts := make([]string, 0, len(v1.Errors))
		for _, e := range v1.Errors {
			parts = append(parts, fmt.Sprintf("code %d: %s", e.Code, e.Message))
		}
		return strings.Join(parts, "; ")
	}

	if status == 401 && len(strings.TrimSpace(string(body))) == 0 {
		return "check consumer and access credentials"
	}
	return ""
}
