package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/laith/internal/studio"
	"github.com/MrWong99/laith/pkg/provider/media"
)

type imageRequest struct {
	Prompt string `json:"prompt"`
	Aspect string `json:"aspect,omitempty"`
}

type imageResponse struct {
	DataURL  string `json:"data_url"`
	MIMEType string `json:"mime_type"`
}

type videoRequest struct {
	Prompt     string `json:"prompt"`
	Aspect     string `json:"aspect,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

type progressEvent struct {
	Message string `json:"message"`
}

type videoDone struct {
	DataURL  string `json:"data_url"`
	MIMEType string `json:"mime_type"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := s.decode(w, r, &req); err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	aspect, err := media.ParseAspect(req.Aspect)
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	img, err := s.cfg.Studio.Image(r.Context(), req.Prompt, aspect)
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	writeJSON(w, http.StatusOK, imageResponse{DataURL: img.DataURL(), MIMEType: mime})
}

// handleVideo renders a clip. By default the response body is the encoded
// video. With ?stream=1 the response is an event stream of "progress"
// events followed by "done" carrying a data URL, or "error".
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := s.decode(w, r, &req); err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	vreq := media.VideoRequest{Prompt: req.Prompt, Resolution: req.Resolution}
	if req.Aspect != "" {
		a, err := media.ParseAspect(req.Aspect)
		if err != nil {
			fail(w, r, statusFor(err), err)
			return
		}
		vreq.Aspect = a
	}

	if strings.TrimSpace(req.Prompt) == "" {
		fail(w, r, http.StatusBadRequest, studio.ErrEmptyPrompt)
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		s.streamVideo(w, r, vreq)
		return
	}

	vid, err := s.cfg.Studio.Video(r.Context(), vreq, nil)
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", videoMIME(vid))
	w.Header().Set("Content-Length", strconv.Itoa(len(vid.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(vid.Data)
}

func (s *Server) streamVideo(w http.ResponseWriter, r *http.Request, req media.VideoRequest) {
	if !s.cfg.Studio.CanVideo() {
		fail(w, r, http.StatusServiceUnavailable, fmt.Errorf("%w: video", studio.ErrUnavailable))
		return
	}
	sse := newEventWriter(w)
	vid, err := s.cfg.Studio.Video(r.Context(), req, func(msg string) {
		sse.send("progress", progressEvent{Message: msg})
	})
	if err != nil {
		if r.Context().Err() == nil {
			sse.send("error", errorBody{Error: err.Error()})
		}
		return
	}
	mime := videoMIME(vid)
	sse.send("done", videoDone{
		DataURL:  "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(vid.Data),
		MIMEType: mime,
	})
}

func videoMIME(v *media.Video) string {
	if v.MIMEType == "" {
		return "video/mp4"
	}
	return v.MIMEType
}
