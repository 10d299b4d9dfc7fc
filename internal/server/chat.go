package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"storyline/internal/chat"
	"storyline/internal/chatapp"
	"storyline/internal/logging"
)

const notAChatRequest = "This function is meant to be used in a Google Chat app."

// newChatHandler serves chat platform interaction events. Anything that is
// not a POST carrying a message is rejected before reaching the app.
func newChatHandler(app *chatapp.App, log logging.Logger, logEvents bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := r.Context().Value(bodyBytesKey{}).([]byte)
		var evt chat.Event
		if r.Method != http.MethodPost || json.Unmarshal(body, &evt) != nil || evt.Message == nil {
			http.Error(w, notAChatRequest, http.StatusBadRequest)
			return
		}
		if logEvents {
			log.Debugw("Request received", "event", json.RawMessage(compact(body)))
		}
		resp, err := app.Handle(r.Context(), evt)
		if err != nil {
			log.WithError(err).Errorw("chat event failed", "type", evt.Type, "space", evt.Space.Name)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out, err := json.Marshal(resp)
		if err != nil {
			log.WithError(err).Errorw("encode chat response", "kind", resp.Kind().String())
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
		if logEvents {
			log.Debugw("Response sent", "responseMessage", json.RawMessage(out))
		}
	}
}

func compact(data []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}
