package api

import (
	"encoding/json"
	"net/http"

	"github.com/vocdoni/zknotes/log"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(append(jdata, '\n'))
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	log.Debugw("api response", "bytes", n)
}
