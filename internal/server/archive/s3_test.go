package archive

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

type fakeObjects struct {
	key  string
	body []byte
	err  error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakePresign struct {
	expires time.Duration
	err     error
}

func (f *fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + *in.Bucket + "/" + *in.Key, Method: "GET"}, nil
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestArchiver(o *fakeObjects, p *fakePresign) *S3Archiver {
	a := NewArchiver(PresignTarget{Objects: o, Presign: p}, "bucket", 15*time.Minute)
	a.now = func() time.Time { return fixedNow }
	return a
}

func TestArchive(t *testing.T) {
	o, p := &fakeObjects{}, &fakePresign{}
	a := newTestArchiver(o, p)

	acc := 5.0
	locs := []models.Location{
		{ID: "1", Username: "alice", Latitude: 0, Longitude: 0, CapturedAt: fixedNow.Add(-time.Minute)},
		{ID: "2", Username: "alice", Latitude: 1, Longitude: 2, CapturedAt: fixedNow, Accuracy: &acc},
	}

	res, err := a.Archive(context.Background(), "alice", locs)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^archives/alice/2026/05/04/[0-9a-f-]{36}\.json$`), res.Key)
	assert.Equal(t, o.key, res.Key)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "https://s3.local/bucket/"+res.Key, res.URL)
	assert.Equal(t, fixedNow.Add(15*time.Minute), res.ExpiresAt)
	assert.Equal(t, 15*time.Minute, p.expires)

	var doc api.HistoryResponse
	require.NoError(t, json.Unmarshal(o.body, &doc))
	assert.Equal(t, "alice", doc.Username)
	require.Len(t, doc.Locations, 2)
	assert.Nil(t, doc.Locations[0].Accuracy)
	assert.Equal(t, 5.0, *doc.Locations[1].Accuracy)
}

func TestArchive_Errors(t *testing.T) {
	_, err := newTestArchiver(&fakeObjects{err: errors.New("no bucket")}, &fakePresign{}).
		Archive(context.Background(), "alice", nil)
	assert.ErrorContains(t, err, "no bucket")

	_, err = newTestArchiver(&fakeObjects{}, &fakePresign{err: errors.New("bad creds")}).
		Archive(context.Background(), "alice", nil)
	assert.ErrorContains(t, err, "bad creds")
}

func TestStorageKey_EscapesUsername(t *testing.T) {
	key := storageKey("a/b c", fixedNow)
	assert.Contains(t, key, "archives/a%2Fb%20c/2026/05/04/")
}

func TestNewS3Archiver(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.S3Bucket = "vault"
	cfg.S3AccessKey = "admin"
	cfg.S3SecretKey = "secret"
	cfg.S3BaseEndpoint = "http://127.0.0.1:9000"

	a, err := NewS3Archiver(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "vault", a.bucket)
	assert.Equal(t, cfg.ArchivePresignTTL, a.ttl)
}
