package service

import (
	"strings"
	"unicode/utf8"

	"github.com/affiliatehub/backend/internal/domain"
)

const maxRawMessageRunes = 200

const (
	consoleAPIKeys = "https://aistudio.google.com/app/apikey"
	consoleAPIs    = "https://console.cloud.google.com/apis/library/generativelanguage.googleapis.com"
	consoleBilling = "https://console.cloud.google.com/billing"
)

type vendorSignature struct {
	kind       domain.ErrorKind
	message    string
	consoleURL string
	// all fragments of one group must match; any group may match.
	groups [][]string
}

// Order matters: the first matching signature wins.
var vendorSignatures = []vendorSignature{
	{
		kind:       domain.KindInvalidAPIKey,
		message:    "The AI API key is invalid. Create a new key and update GEMINI_API_KEY.",
		consoleURL: consoleAPIKeys,
		groups:     [][]string{{"api key not valid"}, {"api_key_invalid"}},
	},
	{
		kind:       domain.KindAPINotEnabled,
		message:    "The Generative Language API is not enabled for this project. Enable it and retry.",
		consoleURL: consoleAPIs,
		groups: [][]string{
			{"service_disabled"},
			{"api_key_service_blocked"},
			{"requests to this api", "are blocked"},
			{"has not been used in project"},
			{"is disabled"},
		},
	},
	{
		kind:       domain.KindBillingDisabled,
		message:    "Billing is not enabled for the AI project. Enable billing to use this model.",
		consoleURL: consoleBilling,
		groups:     [][]string{{"billing_disabled"}, {"billing"}},
	},
	{
		kind:    domain.KindMalformedRequest,
		message: "The AI service rejected the request as malformed. Try rephrasing the prompt.",
		groups:  [][]string{{"invalid_argument"}, {"400 bad request"}, {"malformed"}},
	},
	{
		kind:    domain.KindModelUnavailable,
		message: "The AI model is currently unavailable. Try again later.",
		groups: [][]string{
			{"is not found for api version"},
			{"models/", "not found"},
			{"not_found"},
			{"unavailable"},
			{"overloaded"},
		},
	},
	{
		kind:    domain.KindSafetyBlocked,
		message: "The request was blocked by the AI safety filters. Adjust the prompt and try again.",
		groups:  [][]string{{"safety"}, {"blocked"}, {"prohibited_content"}},
	},
}

// ClassifyError maps a raw vendor error message onto the error taxonomy.
// Unmatched messages become unknown_vendor errors carrying the truncated raw text.
func ClassifyError(msg string) *domain.VendorError {
	lower := strings.ToLower(msg)
	for _, sig := range vendorSignatures {
		if sig.matches(lower) {
			return &domain.VendorError{Kind: sig.kind, Message: sig.message, ConsoleURL: sig.consoleURL}
		}
	}
	return &domain.VendorError{
		Kind:    domain.KindUnknownVendor,
		Message: "Unexpected AI service error: " + truncateRunes(msg, maxRawMessageRunes),
	}
}

func (s vendorSignature) matches(lower string) bool {
	for _, group := range s.groups {
		all := true
		for _, frag := range group {
			if !strings.Contains(lower, frag) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// classifyVendorFailure keeps already typed errors and classifies the rest.
func classifyVendorFailure(err error) error {
	if err == nil {
		return nil
	}
	if vErr, ok := domain.AsVendorError(err); ok {
		return vErr
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	vErr := ClassifyError(err.Error())
	vErr.Err = err
	return vErr
}
