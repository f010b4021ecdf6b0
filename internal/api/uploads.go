package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dharsanguruparan/DataBridge/internal/localstore"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
)

var batchPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// handleUpload stores one multipart file in staging and returns the
// FileSpec to attach to a submission. The optional batch field groups
// several uploads under one staging prefix.
func (s *Server) handleUpload(c echo.Context) error {
	r := c.Request()
	ctx := r.Context()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, s.opts.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		return model.Validationf("expecting multipart form")
	}
	batch := ""
	part, err := nextFilePart(mr, &batch)
	if err != nil {
		return model.Validationf("no file part: %v", err)
	}
	defer part.Close()
	if batch == "" {
		batch = uuid.NewString()
	} else if !batchPattern.MatchString(batch) {
		return model.Validationf("batch must be 1-64 letters, digits or dashes")
	}
	tmp, err := s.persistTemp(part)
	if err != nil {
		return model.Validationf("%v", err)
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()

	actor := actorFrom(c)
	key := localstore.StagingKey(actor.ID, batch, tmp.filename)
	sum, n, err := s.stager.Put(ctx, key, tmp.f, tmp.size, tmp.contentType)
	if errors.Is(err, model.ErrValidation) {
		return err
	}
	if err != nil {
		s.logger.Error("upload to staging failed", "key", key, "error", err)
		return model.Infrastructure("store upload", err)
	}
	s.logger.Info("file staged", "key", key, "size", n, "actor", actor.ID)
	return c.JSON(http.StatusCreated, pipeline.FileSpec{
		Filename:   path.Base(strings.ReplaceAll(tmp.filename, "\\", "/")),
		StagingKey: key,
		Size:       n,
		Checksum:   sum,
	})
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "databridge-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) (*tempUpload, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.opts.MaxFileSize {
				return fail(fmt.Errorf("file exceeds limit (%d bytes)", s.opts.MaxFileSize))
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fail(fmt.Errorf("read file: %w", readErr))
		}
	}
	if written == 0 {
		return fail(errors.New("empty file"))
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewind temp file: %w", err))
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload.bin"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
		filename:    filename,
	}, nil
}

// nextFilePart returns the "file" part, collecting the batch field if it
// precedes the file.
func nextFilePart(mr *multipart.Reader, batch *string) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		switch part.FormName() {
		case "file":
			return part, nil
		case "batch":
			b, _ := io.ReadAll(io.LimitReader(part, 65))
			*batch = string(b)
		}
		part.Close()
	}
}
