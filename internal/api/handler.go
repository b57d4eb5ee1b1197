package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"imgvault/internal/admission"
	"imgvault/internal/config"
	"imgvault/internal/images"
	"imgvault/internal/logging"
	"imgvault/internal/store"
)

// reservedFolders are path segments that can never address an image.
var reservedFolders = map[string]bool{
	"upload": true,
	"api":    true,
}

// Handler handles HTTP requests.
type Handler struct {
	images *images.Service
	abuse  *admission.AbuseGate
	rate   *admission.RateGate
	cfg    *config.Config
	mux    *http.ServeMux
}

func NewHandler(svc *images.Service, abuse *admission.AbuseGate, rate *admission.RateGate, cfg *config.Config) *Handler {
	h := &Handler{
		images: svc,
		abuse:  abuse,
		rate:   rate,
		cfg:    cfg,
		mux:    http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /upload", h.handleUpload)
	h.mux.HandleFunc("GET /{filename}", h.handleLookupRoot)
	h.mux.HandleFunc("GET /{folder}/{filename}", h.handleLookup)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retry_after,omitempty"`
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)

	blocked, remaining, err := h.abuse.IsBlocked(r.Context(), ip)
	if err != nil {
		logging.Internal.Printf("abuse check failed for %s: %v", ip, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		return
	}
	if blocked {
		hours := int(math.Ceil(remaining.Hours()))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: fmt.Sprintf("IP blocked due to abuse. You can try again after %d hours.", hours),
		})
		return
	}

	dec := h.rate.Admit(r.Context(), ip)
	if !dec.Allowed {
		minutes := int(math.Ceil(dec.RetryAfter.Minutes()))
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(dec.RetryAfter.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: fmt.Sprintf("Rate limit exceeded (%d/%d). You can try again after %d minutes.",
				h.cfg.RateLimit.MaxRequests, h.cfg.RateLimit.MaxRequests, minutes),
		})
		return
	}

	if r.ContentLength > h.cfg.File.MaxSizeBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("File too large (max %dMB)", h.cfg.File.MaxSizeBytes>>20),
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.File.MaxSizeBytes)
	if err := r.ParseMultipartForm(h.cfg.File.MaxSizeBytes); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: "Request body too large or malformed",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logging.Internal.Printf("failed to read upload from %s: %v", ip, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !h.cfg.File.AllowsType(contentType) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "Invalid file type. Only JPEG, PNG, GIF, BMP, TIFF, and WebP are allowed",
		})
		return
	}

	result, err := h.images.Upload(r.Context(), data, contentType, header.Filename)
	if err != nil {
		logging.Internal.Printf("upload failed for %s: %v", ip, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		return
	}

	logging.Internal.Printf("uploaded %s (%d bytes) for %s", result.Filename, result.Size, ip)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		Folder:   result.Folder,
		Filename: result.Filename,
	})
}

func (h *Handler) handleLookupRoot(w http.ResponseWriter, r *http.Request) {
	h.serveLookup(w, r, "", r.PathValue("filename"))
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	h.serveLookup(w, r, r.PathValue("folder"), r.PathValue("filename"))
}

func (h *Handler) serveLookup(w http.ResponseWriter, r *http.Request, folder, filename string) {
	ip := extractIP(r)

	blocked, remaining, err := h.abuse.IsBlocked(r.Context(), ip)
	if err != nil {
		logging.Internal.Printf("abuse check failed for %s: %v", ip, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		return
	}
	if blocked {
		if err := h.abuse.RecordBlockedAccess(r.Context(), ip); err != nil {
			logging.Internal.Printf("failed to record blocked access for %s: %v", ip, err)
		}
		hours := int(math.Ceil(remaining.Hours()))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:      "IP blocked due to abuse",
			RetryAfter: fmt.Sprintf("%d hours", hours),
		})
		return
	}

	// Fast rejections still count as failed reads.
	if reservedFolders[folder] {
		h.failedRead(w, r, ip, http.StatusNotFound, "Not Found")
		return
	}
	if !strings.Contains(filename, ".") {
		h.failedRead(w, r, ip, http.StatusNotFound, "Not Found")
		return
	}

	resolved, err := h.images.Resolve(r.Context(), folder, filename)
	if errors.Is(err, store.ErrNotFound) {
		h.failedRead(w, r, ip, http.StatusNotFound, "Image not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("lookup failed for %s/%s: %v", folder, filename, err)
		h.failedRead(w, r, ip, http.StatusInternalServerError, "Server error")
		return
	}
	defer resolved.Body.Close()

	w.Header().Set("Content-Type", resolved.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if _, err := io.Copy(w, resolved.Body); err != nil {
		logging.HTTP.Printf("failed to stream %s/%s to %s: %v", folder, filename, ip, err)
	}
}

// failedRead records a failed lookup for abuse tracking and writes the
// error response. A store failure here fails the request closed.
func (h *Handler) failedRead(w http.ResponseWriter, r *http.Request, ip string, status int, msg string) {
	if err := h.abuse.RecordFailure(r.Context(), ip); err != nil {
		logging.Internal.Printf("failed to record failed read for %s: %v", ip, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
