package status

import (
	"net/http"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/codec"
)

// Body is the JSON document written for a failed request.
type Body struct {
	StatusCode  int    `json:"statusCode"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// BodyOf renders err as a response body. Errors outside the taxonomy become
// an unknown 500.
func BodyOf(err error) Body {
	se, ok := From(err)
	if !ok {
		se = Wrap(KindUnknown, "", err)
	}
	desc := se.Detail
	if desc == "" && se.Err != nil {
		desc = se.Err.Error()
	}
	return Body{
		StatusCode:  se.Kind.HTTPStatus(),
		Code:        se.Code(),
		Message:     se.Message(),
		Description: desc,
	}
}

// Write sends err to the client as a JSON status document.
func Write(w http.ResponseWriter, err error) {
	b := BodyOf(err)
	payload, mErr := codec.JSON.Marshal(b)
	if mErr != nil {
		http.Error(w, b.Message, b.StatusCode)
		return
	}
	w.Header().Set("Content-Type", codec.JSON.ContentType())
	w.WriteHeader(b.StatusCode)
	_, _ = w.Write(payload)
}
