package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

type operationView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

func handleOperations(tools contractx.ToolGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := tools.ToolInfos()
		out := make([]operationView, 0, len(infos))
		for _, info := range infos {
			if info == nil {
				continue
			}
			view := operationView{Name: info.Name, Description: info.Desc}
			if info.ParamsOneOf != nil {
				params, err := info.ParamsOneOf.ToOpenAPIV3()
				if err != nil {
					log.Error().Err(err).Str("component", "server").Str("tool", info.Name).Msg("failed to render operation schema")
					writeError(w, r, http.StatusInternalServerError, "schema_error", "operation schema could not be rendered")
					return
				}
				view.Parameters = params
			}
			out = append(out, view)
		}
		writeJSON(w, http.StatusOK, map[string]any{"operations": out})
	}
}
