package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// BucketService is the artifact store for ingested documents. Keys are
// owner-scoped; Upload never replaces an existing object.
type BucketService interface {
	Upload(ctx context.Context, key string, contentType string, data io.Reader) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	SignedURL(key string, expiry time.Duration) (string, error)
}

type bucketService struct {
	log          *logger.Logger
	client       *storage.Client
	bucketName   string
	emulatorHost string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(os.Getenv("DOCUMENT_GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var DOCUMENT_GCS_BUCKET_NAME")
	}

	emulatorHost := strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/")

	ctx := context.Background()
	var client *storage.Client
	var err error
	if emulatorHost != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
		client, err = storage.NewClient(ctx, option.WithoutAuthentication())
	} else {
		client, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info("Object storage initialized", "bucket", bucketName, "emulator_host", emulatorHost)

	return &bucketService{
		log:          serviceLog,
		client:       client,
		bucketName:   bucketName,
		emulatorHost: emulatorHost,
	}, nil
}

// ObjectKey builds the canonical owner-scoped storage path for one artifact.
func ObjectKey(ownerID uuid.UUID, artifactID uuid.UUID, filename string) string {
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		name = "artifact"
	}
	return fmt.Sprintf("users/%s/documents/%s/%s", ownerID, artifactID, name)
}

// KeyOwnedBy reports whether key sits under the given owner's prefix.
func KeyOwnedBy(key string, ownerID uuid.UUID) bool {
	return strings.HasPrefix(key, fmt.Sprintf("users/%s/", ownerID))
}

func (bs *bucketService) Upload(ctx context.Context, key string, contentType string, data io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := bs.client.Bucket(bs.bucketName).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	if ct := strings.TrimSpace(contentType); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return apperr.ExternalService("storage_write_failed", fmt.Errorf("write object %s: %w", key, err))
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return apperr.State("artifact_exists", "object %s already exists", key)
		}
		return apperr.ExternalService("storage_write_failed", fmt.Errorf("close object writer %s: %w", key, err))
	}
	return nil
}

func (bs *bucketService) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := bs.client.Bucket(bs.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperr.NotFound("artifact_missing", "object %s not found", key)
		}
		return nil, apperr.ExternalService("storage_read_failed", fmt.Errorf("open object %s: %w", key, err))
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.ExternalService("storage_read_failed", fmt.Errorf("read object %s: %w", key, err))
	}
	return raw, nil
}

func (bs *bucketService) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := bs.client.Bucket(bs.bucketName).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return apperr.ExternalService("storage_delete_failed", fmt.Errorf("delete object %s: %w", key, err))
	}
	return nil
}

func (bs *bucketService) SignedURL(key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	// The emulator has no signing backend; hand back a plain URL there.
	if bs.emulatorHost != "" {
		return fmt.Sprintf("%s/%s/%s", bs.emulatorHost, bs.bucketName, key), nil
	}
	u, err := bs.client.Bucket(bs.bucketName).SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", apperr.ExternalService("storage_sign_failed", fmt.Errorf("sign url for %s: %w", key, err))
	}
	return u, nil
}
