package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// --- 日志处理器 ---

func (h *APIHandlers) HandleListJournal(w http.ResponseWriter, r *http.Request) {
	folders, err := h.catalog.ListFolders(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, folders)
}

func (h *APIHandlers) HandleMakeFolder(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.MakeFolder(r.Context(), chi.URLParam(r, "folder"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *APIHandlers) HandleAddName(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	entry, err := h.catalog.AddName(r.Context(), chi.URLParam(r, "folder"), payload.Name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *APIHandlers) HandleChangeName(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewName string `json:"newName"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	entry, err := h.catalog.ChangeName(r.Context(), chi.URLParam(r, "folder"), chi.URLParam(r, "name"), payload.NewName)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *APIHandlers) HandleDeleteName(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteName(r.Context(), chi.URLParam(r, "folder"), chi.URLParam(r, "name")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type journalImages struct {
	Images []string `json:"images"`
}

func (h *APIHandlers) HandleAddJournalImages(w http.ResponseWriter, r *http.Request) {
	var payload journalImages
	if !decodeBody(w, r, &payload) {
		return
	}
	entry, err := h.catalog.AddImages(r.Context(), chi.URLParam(r, "folder"), chi.URLParam(r, "name"), payload.Images)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *APIHandlers) HandleRemoveJournalImages(w http.ResponseWriter, r *http.Request) {
	var payload journalImages
	if !decodeBody(w, r, &payload) {
		return
	}
	entry, err := h.catalog.RemoveImages(r.Context(), chi.URLParam(r, "folder"), chi.URLParam(r, "name"), payload.Images)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *APIHandlers) HandleReadText(w http.ResponseWriter, r *http.Request) {
	text, err := h.catalog.ReadText(r.Context(), chi.URLParam(r, "folder"), chi.URLParam(r, "name"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *APIHandlers) HandleWriteText(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := h.catalog.WriteText(r.Context(), chi.URLParam(r, "folder"), chi.URLParam(r, "name"), payload.Text); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
