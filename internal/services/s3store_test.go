package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// stubS3 is an in-memory s3API for store tests.
type stubS3 struct {
	objects map[string]stubObject
}

type stubObject struct {
	metadata map[string]string
	modified time.Time
}

func newStubS3() *stubS3 {
	return &stubS3{objects: map[string]stubObject{}}
}

func (s *stubS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := s.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: obj.metadata}, nil
}

func (s *stubS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.objects[aws.ToString(params.Key)] = stubObject{metadata: params.Metadata, modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(s.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (s *stubS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	out := &s3.ListObjectsV2Output{}
	for key, obj := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			modified := obj.modified
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				LastModified: &modified,
			})
		}
	}
	return out, nil
}

func tempAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "master.mp3")
	if err := os.WriteFile(path, []byte("mp3 bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestS3AssetStoreKeysAndURLs(t *testing.T) {
	t.Run("key layout", func(t *testing.T) {
		store := NewS3AssetStoreWithClient(newStubS3(), "peerless-music", "us-east-1", "", nil)

		if got := store.Key("97dbd29519287b8c", KindAudio); got != "audio/97dbd29519287b8c.mp3" {
			t.Errorf("unexpected audio key %s", got)
		}
		if got := store.Key("97dbd29519287b8c", KindImage); got != "thumbnails/97dbd29519287b8c.jpg" {
			t.Errorf("unexpected image key %s", got)
		}
	})

	t.Run("public base URL wins", func(t *testing.T) {
		store := NewS3AssetStoreWithClient(newStubS3(), "peerless-music", "us-east-1", "https://cdn.example.com/", nil)
		if got := store.URL("audio/x.mp3"); got != "https://cdn.example.com/audio/x.mp3" {
			t.Errorf("unexpected URL %s", got)
		}
	})

	t.Run("regional URL without base", func(t *testing.T) {
		store := NewS3AssetStoreWithClient(newStubS3(), "peerless-music", "us-east-1", "", nil)
		if got := store.URL("audio/x.mp3"); got != "https://peerless-music.s3.us-east-1.amazonaws.com/audio/x.mp3" {
			t.Errorf("unexpected URL %s", got)
		}
	})
}

func TestS3AssetStore(t *testing.T) {
	ctx := context.Background()

	t.Run("exists returns nil for a missing asset", func(t *testing.T) {
		store := NewS3AssetStoreWithClient(newStubS3(), "peerless-music", "us-east-1", "", nil)

		meta, err := store.Exists(ctx, "97dbd29519287b8c", KindAudio)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta != nil {
			t.Errorf("expected nil metadata, got %+v", meta)
		}
	})

	t.Run("upload then exists round-trips context", func(t *testing.T) {
		store := NewS3AssetStoreWithClient(newStubS3(), "peerless-music", "us-east-1", "", nil)

		result, err := store.Upload(ctx, tempAudioFile(t), "97dbd29519287b8c", KindAudio, map[string]string{
			"title":    "Believer",
			"artist":   "Imagine Dragons",
			"duration": "204",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Duration != 204 {
			t.Errorf("expected duration 204, got %d", result.Duration)
		}

		meta, err := store.Exists(ctx, "97dbd29519287b8c", KindAudio)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta == nil {
			t.Fatal("expected metadata for the uploaded asset")
		}
		if meta.Context["title"] != "Believer" || meta.Duration != 204 {
			t.Errorf("unexpected metadata: %+v", meta)
		}
	})

	t.Run("delete reports whether anything was removed", func(t *testing.T) {
		store := NewS3AssetStoreWithClient(newStubS3(), "peerless-music", "us-east-1", "", nil)

		if _, err := store.Upload(ctx, tempAudioFile(t), "97dbd29519287b8c", KindAudio, nil); err != nil {
			t.Fatal(err)
		}

		removed, err := store.Delete(ctx, "97dbd29519287b8c", KindAudio)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !removed {
			t.Error("expected the asset to be removed")
		}

		removed, err = store.Delete(ctx, "97dbd29519287b8c", KindAudio)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if removed {
			t.Error("expected a second delete to report nothing removed")
		}
	})

	t.Run("list returns audio assets newest first", func(t *testing.T) {
		stub := newStubS3()
		store := NewS3AssetStoreWithClient(stub, "peerless-music", "us-east-1", "", nil)

		stub.objects["audio/old0000000000.mp3"] = stubObject{
			metadata: map[string]string{"title": "Old", "artist": "A", "duration": "100"},
			modified: time.Now().Add(-time.Hour),
		}
		stub.objects["audio/new0000000000.mp3"] = stubObject{
			metadata: map[string]string{"title": "New", "artist": "B", "duration": "200"},
			modified: time.Now(),
		}
		stub.objects["thumbnails/new0000000000.jpg"] = stubObject{modified: time.Now()}

		tracks, err := store.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].Title != "New" || tracks[1].Title != "Old" {
			t.Errorf("expected newest first, got %s then %s", tracks[0].Title, tracks[1].Title)
		}
		if tracks[0].TrackID != "new0000000000" {
			t.Errorf("unexpected track id %s", tracks[0].TrackID)
		}
		if tracks[0].Duration != 200 {
			t.Errorf("expected duration 200, got %d", tracks[0].Duration)
		}
	})
}
