package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/utils"
)

type AssetsHandler struct {
	svc services.AssetService
}

func NewAssetsHandler(svc services.AssetService) *AssetsHandler {
	return &AssetsHandler{svc: svc}
}

// Get answers the JSON document of one asset. The entity tag is derived from
// the asset itself so a matching If-None-Match answers 304.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	iname := chi.URLParam(r, "iname")
	a, err := h.svc.Get(r.Context(), iname)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := json.Marshal(a)
	if err != nil {
		writeError(w, err)
		return
	}
	tag := utils.ETag(doc)
	w.Header().Set("ETag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeData(w, r, http.StatusOK, a)
}
