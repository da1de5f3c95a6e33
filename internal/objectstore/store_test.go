package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if _, err := io.Copy(io.Discard, input.Body); err != nil {
		return nil, err
	}
	f.puts = append(f.puts, input)
	return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`)}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, input *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) GetObjectRequest(*s3.GetObjectInput) (*request.Request, *s3.GetObjectOutput) {
	return nil, nil
}

func testStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	store, err := New(Config{
		Endpoint:     "http://localhost:9000",
		Region:       "us-east-1",
		Bucket:       "episodes",
		AccessKey:    "key",
		SecretKey:    "secret",
		PublicDomain: "https://cdn.example.com/",
	}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	fake := &fakeS3{}
	store.SetAPI(fake)
	return store, fake
}

func TestPutSetsACLAndContentType(t *testing.T) {
	store, fake := testStore(t)
	path := filepath.Join(t.TempDir(), "tgjYS5VH2vJ_lat.ass")
	if err := os.WriteFile(path, []byte("[Script Info]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	object, err := store.Put(context.Background(), path, SubtitleKey(filepath.Base(path)), true)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected one upload, got %d", len(fake.puts))
	}
	input := fake.puts[0]
	if aws.StringValue(input.ACL) != s3.ObjectCannedACLPublicRead {
		t.Fatalf("expected public-read ACL, got %q", aws.StringValue(input.ACL))
	}
	if aws.StringValue(input.ContentType) != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", aws.StringValue(input.ContentType))
	}
	if object.PublicURL != "https://cdn.example.com/subtitles/tgjYS5VH2vJ_lat.ass" {
		t.Fatalf("unexpected public URL %q", object.PublicURL)
	}
	if object.ETag != "abc123" {
		t.Fatalf("unexpected etag %q", object.ETag)
	}
}

func TestPutWithoutPublicReadOmitsACL(t *testing.T) {
	store, fake := testStore(t)
	path := filepath.Join(t.TempDir(), "episode.mkv")
	if err := os.WriteFile(path, []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(context.Background(), path, VideoKey("episode.mkv"), false); err != nil {
		t.Fatalf("put: %v", err)
	}
	if fake.puts[0].ACL != nil {
		t.Fatalf("expected no ACL, got %q", aws.StringValue(fake.puts[0].ACL))
	}
}

func TestDeleteUsesKey(t *testing.T) {
	store, fake := testStore(t)
	if err := store.Delete(context.Background(), VideoKey("episode.mkv")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.deletes) != 1 || fake.deletes[0] != "videos/episode.mkv" {
		t.Fatalf("unexpected deletes %v", fake.deletes)
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := VideoKey("a.mkv"); got != "videos/a.mkv" {
		t.Fatalf("VideoKey = %q", got)
	}
	if got := SubtitleKey("a_en.ass"); got != "subtitles/a_en.ass" {
		t.Fatalf("SubtitleKey = %q", got)
	}
	if got := AudioKey("a_lat.mp3"); got != "audios/a_lat.mp3" {
		t.Fatalf("AudioKey = %q", got)
	}
}
