package iofs

import (
	"bytes"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3FileIO is a FileIO backed by an S3 (or S3-compatible) bucket, mirroring
// the local backend's semantics: Path values are keys relative to Prefix.
type S3FileIO struct {
	Bucket string
	Prefix string
	client *s3.S3
}

// NewS3FileIO builds an S3FileIO from an existing session, the way the
// teacher's cloud storage drivers take a preconfigured client rather than
// owning credential resolution themselves.
func NewS3FileIO(sess *session.Session, bucket, prefix string) *S3FileIO {
	return &S3FileIO{Bucket: bucket, Prefix: prefix, client: s3.New(sess)}
}

func (s *S3FileIO) key(path_ string) string {
	if s.Prefix == "" {
		return path_
	}
	return path.Join(s.Prefix, path_)
}

type s3InputFile struct {
	io  *S3FileIO
	key string
}

func (f *s3InputFile) Path() string { return f.key }

func (f *s3InputFile) Open() (io.ReadCloser, error) {
	out, err := f.io.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(f.io.Bucket),
		Key:    aws.String(f.io.key(f.key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, PathNotFoundError{Path: f.key}
		}
		return nil, err
	}
	return out.Body, nil
}

type s3OutputFile struct {
	io  *S3FileIO
	key string
}

func (f *s3OutputFile) Path() string { return f.key }

// s3Writer buffers writes in memory and uploads on Close, since S3 has no
// streaming append API; this mirrors how the spec's ManifestWriter closes
// an output only once, after all entries are staged.
type s3Writer struct {
	io  *S3FileIO
	key string
	buf bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	_, err := w.io.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(w.io.Bucket),
		Key:    aws.String(w.io.key(w.key)),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}

func (f *s3OutputFile) Create() (io.WriteCloser, error) {
	return &s3Writer{io: f.io, key: f.key}, nil
}

// NewInputFile implements FileIO.
func (s *S3FileIO) NewInputFile(path string) (InputFile, error) {
	return &s3InputFile{io: s, key: path}, nil
}

// NewOutputFile implements FileIO.
func (s *S3FileIO) NewOutputFile(path string) (OutputFile, error) {
	return &s3OutputFile{io: s, key: path}, nil
}

// DeleteFile implements FileIO.
func (s *S3FileIO) DeleteFile(path string) error {
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(path)),
	})
	return err
}

// Rename implements FileIO. S3 has no native move, so this copies the
// object onto its new key and then deletes the old one.
func (s *S3FileIO) Rename(oldPath, newPath string) error {
	source := path.Join(s.Bucket, s.key(oldPath))
	if _, err := s.client.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(s.Bucket),
		CopySource: aws.String(source),
		Key:        aws.String(s.key(newPath)),
	}); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return PathNotFoundError{Path: oldPath}
		}
		return err
	}
	return s.DeleteFile(oldPath)
}
