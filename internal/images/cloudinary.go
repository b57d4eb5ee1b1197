package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"imgvault/internal/logging"
)

const cloudinaryAPIBase = "https://api.cloudinary.com"

// CloudinaryBackend uploads through the Cloudinary-style signed
// multipart API, spreading images across the configured accounts.
type CloudinaryBackend struct {
	selector *Selector
	baseURL  string
	client   *http.Client
	now      func() time.Time
}

func NewCloudinaryBackend(selector *Selector) *CloudinaryBackend {
	return &CloudinaryBackend{
		selector: selector,
		baseURL:  cloudinaryAPIBase,
		client:   &http.Client{},
		now:      time.Now,
	}
}

type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
}

func (b *CloudinaryBackend) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	account, err := b.pickAccount(req.Account)
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(b.now().Unix(), 10)
	params := map[string]string{
		"public_id": req.PublicID,
		"timestamp": timestamp,
		"backup":    "false",
	}
	if req.Overwrite {
		params["overwrite"] = "true"
	}
	signature := Sign(params, account.Secret)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fileHeader := make(textproto.MIMEHeader)
	fileHeader.Set("Content-Disposition", `form-data; name="file"; filename="file"`)
	fileHeader.Set("Content-Type", req.ContentType)
	part, err := form.CreatePart(fileHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"public_id": req.PublicID,
		"timestamp": timestamp,
		"api_key":   account.Key,
		"signature": signature,
		"backup":    "false",
	}
	if req.Overwrite {
		fields["overwrite"] = "true"
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1_1/%s/image/upload", b.baseURL, account.Name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	logging.Upstream.Printf("uploading %s to account %s", req.PublicID, account.Name)
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, msg)
	}

	var uploadResp cloudinaryUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if uploadResp.SecureURL == "" {
		return nil, fmt.Errorf("upload response missing secure_url")
	}

	logging.Upstream.Printf("uploaded %s (%d bytes) to account %s", req.PublicID, len(req.Data), account.Name)
	return &UploadResult{URL: uploadResp.SecureURL, Account: account.Name}, nil
}

func (b *CloudinaryBackend) pickAccount(pinned string) (Account, error) {
	if pinned != "" {
		if account, ok := b.selector.ByName(pinned); ok {
			return account, nil
		}
		return Account{}, fmt.Errorf("account %q not configured", pinned)
	}
	return b.selector.Pick(-1)
}
