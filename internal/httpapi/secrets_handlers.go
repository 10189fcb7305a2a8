package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"jobdeck/internal/config"
	"jobdeck/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // config.Config
}

// SetIMAPPassword stores the app password in the OS keychain; it is never
// written to the config file.
func (h SecretsHandler) SetIMAPPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	account := secrets.IMAPKeyringAccount(cfg)

	if err := secrets.SetIMAPPassword(account, in.Password); err != nil {
		writeError(w, r, http.StatusInternalServerError, "keyring_error", err.Error())
		return
	}
	writeData(w, map[string]any{"account": account})
}
