package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"thumbapi/internal/http/middleware"
	"thumbapi/internal/model"
	"thumbapi/internal/repository"
	"thumbapi/internal/service"
	serviceMocks "thumbapi/internal/service/mocks"
	"thumbapi/internal/storage"
	"thumbapi/internal/thumbnail"
)

const owner = "alice"

var small = model.Size{Width: 200, Height: 200}

func newTestApp(t *testing.T) (*fiber.App, *serviceMocks.MockImageService, *serviceMocks.MockStatusService) {
	t.Helper()
	images := new(serviceMocks.MockImageService)
	status := new(serviceMocks.MockStatusService)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, nil, images, status)
	t.Cleanup(func() {
		images.AssertExpectations(t)
		status.AssertExpectations(t)
	})
	return app, images, status
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	if req.Header.Get(middleware.OwnerIDHeader) == "" {
		req.Header.Set(middleware.OwnerIDHeader, owner)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// ownedByAlice matches the Ownership closure the handlers derive from the header.
func ownedByAlice() interface{} {
	return mock.MatchedBy(func(o service.Ownership) bool {
		return o(&model.Image{OwnerID: owner}) && !o(&model.Image{OwnerID: "bob"})
	})
}

func TestHealth(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", Health(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})

	t.Run("no database", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", Health(nil))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	require.NoError(t, dbMock.ExpectationsWereMet())
}

func TestLiveness(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", Liveness)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	jpegHead := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

	t.Run("created", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		body, ct := multipartBody(t, "cat.png", "image/png", []byte("png-bytes"))

		res := &service.UploadResult{
			Image:      &model.Image{ID: uuid.NewString(), OwnerID: owner, Filename: "cat.png"},
			Thumbnails: []model.Thumbnail{{Size: small, Status: model.StatusPending, Attempt: 1}},
		}
		images.On("Upload", mock.Anything, owner, mock.Anything, "cat.png", "image/png", int64(9)).
			Return(res, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", ct)
		resp := do(t, app, req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var got service.UploadResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, res.Image.ID, got.Image.ID)
		require.Len(t, got.Thumbnails, 1)
		assert.Equal(t, model.StatusPending, got.Thumbnails[0].Status)
	})

	t.Run("sniffs missing part type", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		body, ct := multipartBody(t, "photo", "", jpegHead)

		var seen []byte
		images.On("Upload", mock.Anything, owner, mock.Anything, "photo", "image/jpeg", mock.Anything).
			Run(func(args mock.Arguments) {
				seen, _ = io.ReadAll(args.Get(2).(io.Reader))
			}).
			Return(&service.UploadResult{Image: &model.Image{ID: uuid.NewString()}}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", ct)
		resp := do(t, app, req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, jpegHead, seen, "sniffed bytes must still reach the service")
	})

	t.Run("no file", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		resp := do(t, app, httptest.NewRequest(http.MethodPost, "/images", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("missing owner", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		body, ct := multipartBody(t, "cat.png", "image/png", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", ct)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)
	})

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported type", service.ErrUnsupportedType, http.StatusBadRequest, "UNSUPPORTED_TYPE"},
		{"too large", service.ErrTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"registry full", thumbnail.ErrRegistryFull, http.StatusServiceUnavailable, "BUSY"},
		{"shutting down", thumbnail.ErrShuttingDown, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, images, _ := newTestApp(t)
			body, ct := multipartBody(t, "cat.png", "image/png", []byte("x"))
			images.On("Upload", mock.Anything, owner, mock.Anything, "cat.png", "image/png", mock.Anything).
				Return(nil, tc.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/images", body)
			req.Header.Set("Content-Type", ct)
			resp := do(t, app, req)

			assert.Equal(t, tc.status, resp.StatusCode)
			payload := decodeError(t, resp)
			assert.Equal(t, tc.code, payload.Error.Code)
			assert.NotContains(t, payload.Error.Message, "disk on fire")
		})
	}
}

func TestList(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("List", mock.Anything, owner, 5, 10).
			Return(&service.ImageListResult{Items: []model.Image{{ID: "a"}}, Total: 11}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images?limit=5&offset=10", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got service.ImageListResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Len(t, got.Items, 1)
		assert.Equal(t, 11, got.Total)
	})

	t.Run("defaults", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("List", mock.Anything, owner, 10, 0).
			Return(&service.ImageListResult{}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid limit", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images?limit=abc", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images?offset=x", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Error.Code)
	})
}

func TestGetAndDelete(t *testing.T) {
	id := uuid.NewString()

	t.Run("get", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("Get", mock.Anything, id, ownedByAlice()).
			Return(&model.Image{ID: id, OwnerID: owner}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/"+id, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.Image
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, id, got.ID)
	})

	t.Run("get not found", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("Get", mock.Anything, id, mock.Anything).Return(nil, service.ErrNotFound).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/"+id, nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("delete", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("Delete", mock.Anything, id, ownedByAlice()).Return(nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodDelete, "/images/"+id, nil))
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("delete failure", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("Delete", mock.Anything, id, mock.Anything).Return(errors.New("boom")).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodDelete, "/images/"+id, nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestThumbnailStatus(t *testing.T) {
	id := uuid.NewString()

	t.Run("all sizes", func(t *testing.T) {
		app, _, status := newTestApp(t)
		status.On("GetAllStatuses", mock.Anything, id, ownedByAlice()).Return([]model.Thumbnail{
			{ImageID: id, Size: small, Status: model.StatusReady},
			{ImageID: id, Size: model.Size{Width: 800, Height: 600}, Status: model.StatusPending},
		}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/"+id+"/thumbnails", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got []model.Thumbnail
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, small, got[0].Size)
		assert.Equal(t, model.StatusPending, got[1].Status)
	})

	t.Run("one size", func(t *testing.T) {
		app, _, status := newTestApp(t)
		msg := "decode image"
		status.On("GetStatus", mock.Anything, id, small, mock.Anything).
			Return(&model.Thumbnail{ImageID: id, Size: small, Status: model.StatusFailed, Error: &msg}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/"+id+"/thumbnails/200x200", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.Thumbnail
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, model.StatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, msg, *got.Error)
	})

	t.Run("invalid size", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/"+id+"/thumbnails/big", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_SIZE", decodeError(t, resp).Error.Code)
	})

	t.Run("size not configured", func(t *testing.T) {
		app, _, status := newTestApp(t)
		status.On("GetStatus", mock.Anything, id, model.Size{Width: 9, Height: 9}, mock.Anything).
			Return(nil, service.ErrSizeNotConfigured).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/images/"+id+"/thumbnails/9x9", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_SIZE", decodeError(t, resp).Error.Code)
	})
}

func TestThumbnailFile(t *testing.T) {
	id := uuid.NewString()
	url := "/images/" + id + "/thumbnails/200x200/file"

	t.Run("ready", func(t *testing.T) {
		app, _, status := newTestApp(t)
		data := []byte("jpeg-data")
		status.On("OpenVariant", mock.Anything, id, small, ownedByAlice()).
			Return(io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Size: int64(len(data)), ContentType: "image/jpeg"}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, url, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		got, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("not ready", func(t *testing.T) {
		app, _, status := newTestApp(t)
		status.On("OpenVariant", mock.Anything, id, small, mock.Anything).
			Return(nil, storage.ObjectInfo{}, service.ErrNotReady).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodGet, url, nil))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "NOT_READY", decodeError(t, resp).Error.Code)
	})
}

func TestRetryThumbnail(t *testing.T) {
	id := uuid.NewString()
	url := "/images/" + id + "/thumbnails/200x200/retry"

	t.Run("accepted", func(t *testing.T) {
		app, images, _ := newTestApp(t)
		images.On("RetryThumbnail", mock.Anything, id, small, ownedByAlice()).
			Return(&model.Thumbnail{ImageID: id, Size: small, Status: model.StatusPending, Attempt: 2}, nil).Once()

		resp := do(t, app, httptest.NewRequest(http.MethodPost, url, nil))

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		var got model.Thumbnail
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, 2, got.Attempt)
	})

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not failed", repository.ErrRecordConflict, http.StatusConflict, "CONFLICT"},
		{"job active", thumbnail.ErrJobActive, http.StatusConflict, "JOB_ACTIVE"},
		{"not found", service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, images, _ := newTestApp(t)
			images.On("RetryThumbnail", mock.Anything, id, small, mock.Anything).Return(nil, tc.err).Once()

			resp := do(t, app, httptest.NewRequest(http.MethodPost, url, nil))

			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, decodeError(t, resp).Error.Code)
		})
	}
}

func TestRouting(t *testing.T) {
	app, _, _ := newTestApp(t)

	t.Run("not found route", func(t *testing.T) {
		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/non-existent", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp := do(t, app, httptest.NewRequest(http.MethodPost, "/health", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})
}
