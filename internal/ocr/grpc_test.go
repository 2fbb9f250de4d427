package ocr

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"

	"transhot/internal/auth"
)

type fakeAnnotator struct {
	visionpb.UnimplementedImageAnnotatorServer

	resp    *visionpb.BatchAnnotateImagesResponse
	err     error
	apiKeys []string
	got     *visionpb.BatchAnnotateImagesRequest
}

func (f *fakeAnnotator) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	f.apiKeys = md.Get("x-goog-api-key")
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newGRPCTestRecognizer(t *testing.T, fake *fakeAnnotator) *GRPCRecognizer {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	visionpb.RegisterImageAnnotatorServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client, err := vision.NewImageAnnotatorClient(context.Background(), option.WithGRPCConn(conn))
	require.NoError(t, err)

	rec := NewGRPCRecognizerWithClient(client)
	t.Cleanup(func() { _ = rec.Close() })
	return rec
}

func TestGRPCRecognizer_Recognize(t *testing.T) {
	resp := &visionpb.BatchAnnotateImagesResponse{}
	require.NoError(t, protojson.Unmarshal([]byte(annotateResponse), resp))
	fake := &fakeAnnotator{resp: resp}
	rec := newGRPCTestRecognizer(t, fake)

	result, err := rec.Recognize(context.Background(), testSnapshot(), auth.Token{APIKey: "k-grpc"})
	require.NoError(t, err)

	assert.Equal(t, []string{"k-grpc"}, fake.apiKeys)
	require.Len(t, fake.got.GetRequests(), 1)
	assert.Equal(t, []byte("png-bytes"), fake.got.GetRequests()[0].GetImage().GetContent())
	assert.Equal(t, visionpb.Feature_TEXT_DETECTION, fake.got.GetRequests()[0].GetFeatures()[0].GetType())

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, "Hi there\nBye", result.Blocks[0].Text)
}

func TestGRPCRecognizer_ResourceExhausted(t *testing.T) {
	fake := &fakeAnnotator{err: status.Error(codes.ResourceExhausted, "Quota exceeded")}
	rec := newGRPCTestRecognizer(t, fake)

	_, err := rec.Recognize(context.Background(), testSnapshot(), auth.Token{APIKey: "k"})

	var recErr *RecognitionError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, http.StatusTooManyRequests, recErr.Status)
	assert.Equal(t, "Quota exceeded", recErr.Detail)
}
