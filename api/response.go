package api

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

func writeJSON(w http.ResponseWriter, status int, response civic.Response) {
	payload, err := json.Marshal(response)
	if err != nil {
		logger.Default().WithError(err).Errorln("cannot marshal response")
		http.Error(w, "cannot marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(payload)
}

// writeData writes a success envelope with data and an optional message.
func writeData(w http.ResponseWriter, status int, data interface{}, message string) {
	response := civic.Response{Success: true, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			logger.Default().WithError(err).Errorln("cannot marshal response data")
			http.Error(w, "cannot marshal response", http.StatusInternalServerError)
			return
		}
		response.Data = raw
	}
	writeJSON(w, status, response)
}

// writePage writes a success envelope with a list and its pagination,
// duplicated into Pagination-* headers.
func writePage(w http.ResponseWriter, data interface{}, pagination civic.Pagination) {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Default().WithError(err).Errorln("cannot marshal response data")
		http.Error(w, "cannot marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Pagination-Limit", strconv.Itoa(pagination.Limit))
	w.Header().Set("Pagination-Offset", strconv.Itoa(pagination.Offset))
	w.Header().Set("Pagination-Total-Count", strconv.Itoa(pagination.Total))
	writeJSON(w, http.StatusOK, civic.Response{
		Success:    true,
		Data:       raw,
		Pagination: &pagination,
	})
}

// writeError writes a failure envelope. Unknown error values are
// reported as upstream failures without leaking their message.
func writeError(w http.ResponseWriter, err error) {
	civicErr := civic.AsError(err)
	if civicErr == nil {
		civicErr = civic.ErrorFromStatus(http.StatusInternalServerError, "internal error")
	}
	status := civicErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := civicErr.Message
	if status >= http.StatusInternalServerError {
		logger.Default().Errorln("request failed:", civicErr.Error())
		message = "internal error"
	}
	writeJSON(w, status, civic.Response{
		Success: false,
		Error:   string(civicErr.Kind),
		Message: message,
		Details: civicErr.Details,
	})
}

// readBody decodes the request body into result. A failure is a
// validation error, like any other malformed input.
func readBody(r *http.Request, result interface{}) *civic.Error {
	if err := json.NewDecoder(r.Body).Decode(result); err != nil {
		return civic.NewValidationError("invalid json: " + err.Error())
	}
	return nil
}
