package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	s3config "github.com/gulubao/GOT-OCR2.0/internal/config"
)

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"http://127.0.0.1:9000", true, "http://127.0.0.1:9000"},
	}
	for _, tc := range cases {
		if got := endpointURL(tc.endpoint, tc.ssl); got != tc.want {
			t.Fatalf("endpointURL(%q, %v) = %q, want %q", tc.endpoint, tc.ssl, got, tc.want)
		}
	}
}

func newFakeS3(t *testing.T, objects map[string]string) *s3Repository {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			var keys []string
			for k := range objects {
				if strings.HasPrefix(k, prefix) {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>`)
			fmt.Fprint(w, `<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(w, `<Name>images</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, prefix, len(keys))
			for _, k := range keys {
				fmt.Fprintf(w, `<Contents><Key>%s</Key><Size>%d</Size></Contents>`, k, len(objects[k]))
			}
			fmt.Fprint(w, `</ListBucketResult>`)
			return
		}

		key := strings.TrimPrefix(r.URL.Path, "/images/")
		if key == "locked.png" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
			return
		}
		body, ok := objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})

	return &s3Repository{
		client:  client,
		cfg:     &s3config.S3Config{BucketName: "images", Region: "us-east-1"},
		maxSize: 16,
		log:     zap.NewNop(),
	}
}

func TestFetchImage(t *testing.T) {
	repo := newFakeS3(t, map[string]string{"scans/receipt.png": "png-bytes"})

	img, err := repo.FetchImage(context.Background(), "scans/receipt.png")
	if err != nil {
		t.Fatalf("FetchImage() error = %v", err)
	}
	if img.Name != "receipt.png" || string(img.Data) != "png-bytes" {
		t.Fatalf("unexpected image: %s %q", img.Name, img.Data)
	}

	if _, err := repo.FetchImage(context.Background(), "scans/missing.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestFetchImageAccessDenied(t *testing.T) {
	repo := newFakeS3(t, nil)

	_, err := repo.FetchImage(context.Background(), "locked.png")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("access errors must not look like bad input: %v", err)
	}
}

func TestFetchImageTooLarge(t *testing.T) {
	repo := newFakeS3(t, map[string]string{"big.png": strings.Repeat("x", 64)})

	if _, err := repo.FetchImage(context.Background(), "big.png"); !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("expected ErrObjectTooLarge, got %v", err)
	}
}

func TestFetchPrefix(t *testing.T) {
	repo := newFakeS3(t, map[string]string{
		"book/p2.png": "two",
		"book/p1.png": "one",
		"other/x.png": "x",
	})

	images, err := repo.FetchPrefix(context.Background(), "book/")
	if err != nil {
		t.Fatalf("FetchPrefix() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].Name != "p1.png" || string(images[1].Data) != "two" {
		t.Fatalf("unexpected images: %+v", images)
	}
}
