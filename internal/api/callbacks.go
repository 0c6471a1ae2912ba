package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/tracker"
)

// CallbackResponse summarizes one callback batch.
type CallbackResponse struct {
	Recebidos int `json:"recebidos"`
	Aplicados int `json:"aplicados"`
	Invalidos int `json:"invalidos"`
}

// ReceberCallbacks handles POST /v1/callbacks/provedor: a batch of delivery
// events from the provider. The response is 200 whenever the batch was
// understood, even if individual events were invalid, since a non-2xx would make
// the provider redeliver the whole batch, valid events included.
func (h *Handler) ReceberCallbacks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	var eventos []tracker.Evento
	if err := json.NewDecoder(r.Body).Decode(&eventos); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if len(eventos) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Empty batch", "at least one event is required")
		return
	}

	resp := CallbackResponse{Recebidos: len(eventos)}

	for i := range eventos {
		ev := &eventos[i]
		if ev.MensagemProvedorID == "" {
			resp.Invalidos++
			continue
		}
		if err := h.rastreador.Processar(ctx, tenantID, ev); err != nil {
			if errors.Is(err, tracker.ErrEventoDesconhecido) {
				resp.Invalidos++
				continue
			}
			h.logger.Error("failed to apply callback event",
				zap.Error(err),
				zap.String("mensagem_provedor_id", ev.MensagemProvedorID),
				zap.String("tipo", ev.Tipo),
			)
			h.writeError(w, http.StatusInternalServerError, "callback_error", "Failed to apply events", "")
			return
		}
		resp.Aplicados++
	}

	h.logger.Info("callback batch processed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("recebidos", resp.Recebidos),
		zap.Int("aplicados", resp.Aplicados),
		zap.Int("invalidos", resp.Invalidos),
	)

	h.writeJSON(w, http.StatusOK, resp)
}
