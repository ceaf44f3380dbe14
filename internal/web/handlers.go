package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csv2xlsx/internal/core"
	"github.com/JonMunkholm/csv2xlsx/internal/logging"
)

const (
	// multipartMemory is how much of a form is held in memory; the rest spills to disk.
	multipartMemory = 32 << 20

	// formOverhead is allowed on top of the file size for boundaries and fields.
	formOverhead = 1 << 20

	downloadName = "converted.xlsx"
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// convertResponse is the body returned by POST /convert.
type convertResponse struct {
	DownloadURL       string `json:"download_url"`
	DetectedDelimiter string `json:"detected_delimiter"`
	FileSize          int64  `json:"file_size"`
	Encoding          string `json:"encoding"`
	Sheets            int    `json:"sheets"`
	DataRows          int    `json:"data_rows"`
	ErrorRows         int    `json:"error_rows"`
}

// handleRoot is the liveness message.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"message": "Service is running!"})
}

// handleHealth reports conversion slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":   "ok",
		"uploads":  s.service.UploadLimiterStatus(),
		"max_file": s.cfg.Upload.MaxFileSize,
	})
}

// handleConvert converts a multipart "file" field into a stored workbook.
// Optional form fields "delimiter" and "encoding" select the dialect.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(w, r, fmt.Errorf("%w: %w", errFileTooLarge, err))
			return
		}
		respondError(w, r, fmt.Errorf("%w: %w", errNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errNoFile, err))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		respondError(w, r, fmt.Errorf("%w: %d bytes", errFileTooLarge, header.Size))
		return
	}

	noHeader, _ := strconv.ParseBool(r.FormValue("no_header"))
	res, err := s.service.Convert(r.Context(), core.ConvertRequest{
		FileName:  header.Filename,
		Source:    file,
		Delimiter: r.FormValue("delimiter"),
		Encoding:  r.FormValue("encoding"),
		NoHeader:  noHeader,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, convertResponse{
		DownloadURL:       "/download/" + url.PathEscape(res.FileName),
		DetectedDelimiter: res.DetectedDelimiter,
		FileSize:          res.FileSize,
		Encoding:          res.Encoding,
		Sheets:            res.Sheets,
		DataRows:          res.DataRows,
		ErrorRows:         res.ErrorRows,
	})
}

// handleDownload serves a stored workbook once, then deletes it.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "fileName")

	rc, size, err := s.service.OpenDownload(name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger := logging.WithFields(r.Context(), "artifact", name)

	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Cache-Control", "no-store")

	n, copyErr := io.Copy(w, rc)
	rc.Close()
	if copyErr != nil {
		logger.Warn("download interrupted", "written", n, "size", size, "error", copyErr)
	}

	if err := s.service.RemoveDownload(name); err != nil {
		logger.Error("remove served artifact", "error", err)
		return
	}
	logger.Info("artifact served", "bytes", n)
}
