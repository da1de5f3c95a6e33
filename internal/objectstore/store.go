package objectstore

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

// Key-space prefixes for the three artifact kinds.
const (
	PrefixVideos    = "videos"
	PrefixSubtitles = "subtitles"
	PrefixAudios    = "audios"
)

// Object describes an uploaded artifact.
type Object struct {
	Key       string
	PublicURL string
	ETag      string
	SizeBytes int64
}

// Config carries the connection settings for the store.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	PublicDomain string
}

// s3API is the slice of the S3 API the store uses. *s3.S3 satisfies it.
type s3API interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
	GetObjectRequest(input *s3.GetObjectInput) (*request.Request, *s3.GetObjectOutput)
}

// Store is an S3-backed artifact store.
type Store struct {
	api          s3API
	bucket       string
	publicDomain string
	logger       *slog.Logger
}

// New connects to the configured endpoint. The session has no HTTP client
// timeout so large master uploads are never cut off mid-body.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "connect", "bucket is required", nil)
	}
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "connect", "build session", err)
	}
	return &Store{
		api:          s3.New(sess),
		bucket:       cfg.Bucket,
		publicDomain: strings.TrimRight(cfg.PublicDomain, "/"),
		logger:       logging.NewComponentLogger(logger, "objectstore"),
	}, nil
}

// SetAPI overrides the S3 API (used in tests).
func (s *Store) SetAPI(api s3API) {
	s.api = api
}

// Put uploads a local file under remoteKey. When publicRead is set the
// object is world-readable.
func (s *Store) Put(ctx context.Context, localPath, remoteKey string, publicRead bool) (Object, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Object{}, services.Wrap(services.ErrValidation, "objectstore", "put", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Object{}, services.Wrap(services.ErrValidation, "objectstore", "put", localPath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(remoteKey),
		Body:        file,
		ContentType: aws.String(contentType(localPath)),
	}
	if publicRead {
		input.ACL = aws.String(s3.ObjectCannedACLPublicRead)
	}

	out, err := s.api.PutObjectWithContext(ctx, input)
	if err != nil {
		return Object{}, services.Wrap(services.ErrTransient, "objectstore", "put", remoteKey, err)
	}

	object := Object{
		Key:       remoteKey,
		PublicURL: s.PublicURL(remoteKey),
		SizeBytes: info.Size(),
	}
	if out.ETag != nil {
		object.ETag = strings.Trim(*out.ETag, `"`)
	}
	s.logger.Info("artifact uploaded",
		logging.String("key", remoteKey),
		logging.Int64("size_bytes", object.SizeBytes),
	)
	return object, nil
}

// Delete removes an object. Deleting a missing key is not an error on
// S3-compatible stores, so callers may use it for best-effort cleanup.
func (s *Store) Delete(ctx context.Context, remoteKey string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(remoteKey),
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "objectstore", "delete", remoteKey, err)
	}
	s.logger.Debug("artifact deleted", logging.String("key", remoteKey))
	return nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *Store) SignedURL(remoteKey string, ttl time.Duration) (string, error) {
	req, _ := s.api.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(remoteKey),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "objectstore", "sign url", remoteKey, err)
	}
	return url, nil
}

// PublicURL builds the public URL for a key from the configured domain.
func (s *Store) PublicURL(remoteKey string) string {
	return s.publicDomain + "/" + strings.TrimLeft(remoteKey, "/")
}

// VideoKey returns the master artifact key for a basename.
func VideoKey(basename string) string { return PrefixVideos + "/" + basename }

// SubtitleKey returns the subtitle artifact key for a basename.
func SubtitleKey(basename string) string { return PrefixSubtitles + "/" + basename }

// AudioKey returns the audio artifact key for a basename.
func AudioKey(basename string) string { return PrefixAudios + "/" + basename }

func contentType(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mkv":
		return "video/x-matroska"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".ass":
		return "text/plain; charset=utf-8"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
