package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelgrade/internal/domain"
	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/supersede"
)

type enhanceResponse struct {
	State    enhance.State   `json:"state"`
	Stages   []enhance.State `json:"stages"`
	Category string          `json:"category"`
	Format   string          `json:"format"`
	MIMEType string          `json:"mime_type"`
	Quality  int             `json:"quality,omitempty"`
	Width    int             `json:"width,omitempty"`
	Height   int             `json:"height,omitempty"`
	Sequence uint64          `json:"sequence,omitempty"`
	DataURI  string          `json:"data_uri"`
}

// handleEnhance enhances the request body synchronously. Undecodable bodies
// are not an error: they come back unchanged with state=passthrough.
func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	query := r.URL.Query()
	category, err := domain.ParseCategory(query.Get("category"))
	if err != nil {
		s.logger.Printf("enhance category fallback key=%q err=%v", query.Get("category"), err)
	}
	format, err := domain.ParseFormat(query.Get("format"))
	if err != nil {
		s.logger.Printf("enhance format fallback key=%q default=%s err=%v", query.Get("format"), format, err)
	}

	ctx := r.Context()
	token, err := supersede.NewToken(ctx, s.tracker, r.Header.Get(HeaderSessionID))
	if err != nil {
		s.logger.Printf("issue sequence failed session=%q err=%v", r.Header.Get(HeaderSessionID), err)
		writeError(w, http.StatusServiceUnavailable, "failed to issue session sequence")
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.enhanceTimeout)
	defer cancel()
	result, err := s.enhancer.Go(body, category, format).Wait(waitCtx)
	if err != nil {
		s.logger.Printf("enhance wait aborted category=%s format=%s err=%v", category, format, err)
		writeError(w, http.StatusServiceUnavailable, "enhancement did not finish in time")
		return
	}
	s.metrics.enhanceTotal.WithLabelValues(category.String(), format.String(), string(result.State)).Inc()

	err = supersede.Commit(ctx, s.tracker, token, func() error {
		s.writeEnhanceResult(w, r, result, token)
		return nil
	})
	switch {
	case errors.Is(err, supersede.ErrSuperseded):
		s.metrics.supersededTotal.WithLabelValues("enhance").Inc()
		w.Header().Set(HeaderSessionSequence, strconv.FormatUint(token.Seq, 10))
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "superseded by a newer request in this session",
			"session_id": token.Session,
			"sequence":   token.Seq,
		})
	case err != nil:
		s.logger.Printf("sequence check failed session=%q err=%v", token.Session, err)
		writeError(w, http.StatusServiceUnavailable, "failed to check session sequence")
	}
}

func (s *Server) writeEnhanceResult(w http.ResponseWriter, r *http.Request, result enhance.Result, token supersede.Token) {
	img := result.Image
	h := w.Header()
	h.Set(HeaderEnhanceState, string(result.State))
	h.Set(HeaderEnhanceCategory, result.Category.String())
	h.Set(HeaderEnhanceFormat, result.Format.String())
	if token.Session != "" {
		h.Set(HeaderSessionSequence, strconv.FormatUint(token.Seq, 10))
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, enhanceResponse{
			State:    result.State,
			Stages:   result.Stages,
			Category: result.Category.String(),
			Format:   result.Format.String(),
			MIMEType: img.MIMEType,
			Quality:  img.Quality,
			Width:    img.Width,
			Height:   img.Height,
			Sequence: token.Seq,
			DataURI:  img.DataURI(),
		})
		return
	}

	h.Set("Content-Type", img.MIMEType)
	h.Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
