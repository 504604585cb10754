package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
)

const (
	audioPrefix = "audio/"
	imagePrefix = "thumbnails/"

	maxLibraryKeys = 100
)

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3AssetStore implements [AssetStore] on top of an S3 bucket. Audio lives
// under audio/<track_id>.mp3 and thumbnails under thumbnails/<track_id>.jpg;
// track context (title, artist, duration) rides along as object metadata so
// the library listing needs no extra database.
type S3AssetStore struct {
	client        s3API
	bucket        string
	region        string
	publicBaseURL string
	logger        *log.Logger
}

// NewS3AssetStore creates a store using credentials from the environment.
func NewS3AssetStore(ctx context.Context, bucket, region, publicBaseURL string, logger *log.Logger) (*S3AssetStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &S3AssetStore{
		client:        s3.NewFromConfig(cfg),
		bucket:        bucket,
		region:        region,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// NewS3AssetStoreWithClient creates a store with an injected client. Used by tests.
func NewS3AssetStoreWithClient(client s3API, bucket, region, publicBaseURL string, logger *log.Logger) *S3AssetStore {
	return &S3AssetStore{
		client:        client,
		bucket:        bucket,
		region:        region,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Key returns the object key for a track asset.
func (s *S3AssetStore) Key(trackID string, kind AssetKind) string {
	if kind == KindImage {
		return imagePrefix + trackID + ".jpg"
	}
	return audioPrefix + trackID + ".mp3"
}

// URL returns the public URL for an object key.
func (s *S3AssetStore) URL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	if s.region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

// isNotFound reports whether an S3 error means the object does not exist.
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// Exists implements [AssetStore].
func (s *S3AssetStore) Exists(ctx context.Context, trackID string, kind AssetKind) (*AssetMetadata, error) {
	key := s.Key(trackID, kind)

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("head %s: %w", key, err)
	}

	meta := &AssetMetadata{
		URL:     s.URL(key),
		Context: out.Metadata,
	}
	if d, err := strconv.Atoi(out.Metadata["duration"]); err == nil {
		meta.Duration = d
	}

	return meta, nil
}

// Upload implements [AssetStore]. Overwrites any existing object under the key.
func (s *S3AssetStore) Upload(ctx context.Context, localPath, trackID string, kind AssetKind, context map[string]string) (*UploadResult, error) {
	key := s.Key(trackID, kind)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := "audio/mpeg"
	if kind == KindImage {
		contentType = "image/jpeg"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
		Metadata:    context,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	if s.logger != nil {
		s.logger.Info("uploaded asset", "bucket", s.bucket, "key", key)
	}

	result := &UploadResult{URL: s.URL(key)}
	if d, err := strconv.Atoi(context["duration"]); err == nil {
		result.Duration = d
	}

	return result, nil
}

// Delete implements [AssetStore].
func (s *S3AssetStore) Delete(ctx context.Context, trackID string, kind AssetKind) (bool, error) {
	key := s.Key(trackID, kind)

	if meta, err := s.Exists(ctx, trackID, kind); err != nil {
		return false, err
	} else if meta == nil {
		return false, nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return true, nil
}

// List implements [AssetStore], returning cached audio assets newest first.
func (s *S3AssetStore) List(ctx context.Context) ([]models.LibraryTrack, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(audioPrefix),
		MaxKeys: aws.Int32(maxLibraryKeys),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	type entry struct {
		track    models.LibraryTrack
		modified time.Time
	}

	var entries []entry
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		trackID := strings.TrimSuffix(strings.TrimPrefix(key, audioPrefix), ".mp3")
		if trackID == "" {
			continue
		}

		track := models.LibraryTrack{
			TrackID:  trackID,
			AudioURL: s.URL(key),
		}

		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			track.Title = head.Metadata["title"]
			track.Artist = head.Metadata["artist"]
			if d, derr := strconv.Atoi(head.Metadata["duration"]); derr == nil {
				track.Duration = d
			}
		} else if s.logger != nil {
			s.logger.Warn("could not read asset metadata", "key", key, "error", err)
		}

		if track.Title == "" {
			track.Title = "Track " + trackID[:min(8, len(trackID))]
		}
		if track.Artist == "" {
			track.Artist = "Unknown Artist"
		}

		// Thumbnail presence is assumed; readers fall back to the audio key
		// pattern only when the image 404s client-side.
		track.Thumbnail = s.URL(s.Key(trackID, KindImage))

		var modified time.Time
		if obj.LastModified != nil {
			modified = *obj.LastModified
			track.CreatedAt = modified.UTC().Format(time.RFC3339)
		}

		entries = append(entries, entry{track: track, modified: modified})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modified.After(entries[j].modified) })

	tracks := make([]models.LibraryTrack, len(entries))
	for i, e := range entries {
		tracks[i] = e.track
	}

	return tracks, nil
}
