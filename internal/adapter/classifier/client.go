// Package classifier labels video frames with a facial emotion using an
// external image classification service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Classifier labels a single frame.
type Classifier interface {
	Classify(ctx context.Context, frame domain.Frame) (domain.EmotionLabel, error)
}

// HTTPClient calls a classification service with a multipart upload of the
// frame image to /predict. Each frame gets exactly one request.
type HTTPClient struct {
	baseURL string
	c       *http.Client
}

type predictResp struct {
	Emotion string `json:"emotion"`
	Error   string `json:"error,omitempty"`
}

// NewHTTPClient creates a classifier client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		c:       &http.Client{Timeout: timeout},
	}
}

var _ Classifier = (*HTTPClient)(nil)

// Classify uploads the frame and maps the returned label onto the emotion
// enumeration. Every failure wraps domain.ErrClassificationFailed.
func (h *HTTPClient) Classify(ctx context.Context, frame domain.Frame) (domain.EmotionLabel, error) {
	if len(frame.Data) == 0 {
		return "", fmt.Errorf("%w: frame %d has no image data", domain.ErrClassificationFailed, frame.Index)
	}
	body, contentType, err := encodeFrame(frame)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrClassificationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrClassificationFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.c.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrClassificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: classifier %s: %s", domain.ErrClassificationFailed, resp.Status, strings.TrimSpace(string(msg)))
	}
	var out predictResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: classifier decode: %w", domain.ErrClassificationFailed, err)
	}

	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrClassificationFailed, out.Error)
	}
	label, ok := domain.ParseEmotionLabel(strings.ToLower(strings.TrimSpace(out.Emotion)))
	if !ok {
		return "", fmt.Errorf("%w: unknown label %q", domain.ErrClassificationFailed, out.Emotion)
	}
	return label, nil
}

func encodeFrame(frame domain.Frame) ([]byte, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	contentType := frame.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="frame-%d%s"`, frame.Index, extension(contentType)))
	hdr.Set("Content-Type", contentType)

	fw, err := w.CreatePart(hdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(frame.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
