package core

import "net/http"

func writeJSON(w http.ResponseWriter, payload []byte, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

// notFound answers paths that match neither a prefix nor a local route.
func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, []byte(`{"statusCode":404,"message":"no route for path"}`), http.StatusNotFound)
}
