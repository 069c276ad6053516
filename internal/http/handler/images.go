package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"thumbapi/internal/http/middleware"
	"thumbapi/internal/model"
	"thumbapi/internal/service"
)

// ImageHandler serves the /images routes. Every route runs behind middleware.Owner.
type ImageHandler struct {
	images service.ImageService
	status service.StatusService
}

// NewImageHandler constructs an ImageHandler.
func NewImageHandler(images service.ImageService, status service.StatusService) *ImageHandler {
	return &ImageHandler{images: images, status: status}
}

func owns(c *fiber.Ctx) service.Ownership {
	return service.OwnedBy(middleware.OwnerID(c))
}

// imageID validates the :id path parameter.
func imageID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func sizeParam(c *fiber.Ctx) (model.Size, bool) {
	s, err := model.ParseSize(c.Params("size"))
	return s, err == nil
}

// Upload accepts a multipart image and schedules its thumbnails.
//
// @Summary  Upload an image
// @Tags     images
// @Accept   multipart/form-data
// @Produce  json
// @Param    X-Owner-ID header   string true "Owner"
// @Param    file       formData file   true "Image (jpeg, png or gif)"
// @Success  201 {object} service.UploadResult
// @Failure  400 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Failure  503 {object} errorPayload
// @Router   /images [post]
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
	}
	defer f.Close()

	var body io.Reader = f
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		// Clients often omit the part type; sniff the leading bytes instead.
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		head = head[:n]
		ct = http.DetectContentType(head)
		body = io.MultiReader(bytes.NewReader(head), f)
	}

	res, err := h.images.Upload(c.UserContext(), middleware.OwnerID(c), body, fh.Filename, ct, fh.Size)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// List returns the caller's images.
//
// @Summary  List images
// @Tags     images
// @Produce  json
// @Param    X-Owner-ID header string true  "Owner"
// @Param    limit      query  int    false "Page size" default(10)
// @Param    offset     query  int    false "Offset"    default(0)
// @Success  200 {object} service.ImageListResult
// @Router   /images [get]
func (h *ImageHandler) List(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
	}

	res, err := h.images.List(c.UserContext(), middleware.OwnerID(c), limit, offset)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(res)
}

// Get returns image metadata.
//
// @Summary  Get image
// @Tags     images
// @Produce  json
// @Param    X-Owner-ID header string true "Owner"
// @Param    id         path   string true "Image ID"
// @Success  200 {object} model.Image
// @Failure  404 {object} errorPayload
// @Router   /images/{id} [get]
func (h *ImageHandler) Get(c *fiber.Ctx) error {
	id, ok := imageID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	img, err := h.images.Get(c.UserContext(), id, owns(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(img)
}

// Delete removes an image with all its thumbnails. Repeating it is harmless.
//
// @Summary  Delete image
// @Tags     images
// @Param    X-Owner-ID header string true "Owner"
// @Param    id         path   string true "Image ID"
// @Success  204
// @Failure  404 {object} errorPayload
// @Router   /images/{id} [delete]
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	id, ok := imageID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	if err := h.images.Delete(c.UserContext(), id, owns(c)); err != nil {
		return writeServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Thumbnails lists the status of every size.
//
// @Summary  Thumbnail statuses
// @Tags     thumbnails
// @Produce  json
// @Param    X-Owner-ID header string true "Owner"
// @Param    id         path   string true "Image ID"
// @Success  200 {array}  model.Thumbnail
// @Failure  404 {object} errorPayload
// @Router   /images/{id}/thumbnails [get]
func (h *ImageHandler) Thumbnails(c *fiber.Ctx) error {
	id, ok := imageID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	list, err := h.status.GetAllStatuses(c.UserContext(), id, owns(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(list)
}

// Thumbnail returns the status of one size.
//
// @Summary  Thumbnail status
// @Tags     thumbnails
// @Produce  json
// @Param    X-Owner-ID header string true "Owner"
// @Param    id         path   string true "Image ID"
// @Param    size       path   string true "Size, e.g. 200x200"
// @Success  200 {object} model.Thumbnail
// @Failure  404 {object} errorPayload
// @Router   /images/{id}/thumbnails/{size} [get]
func (h *ImageHandler) Thumbnail(c *fiber.Ctx) error {
	id, ok := imageID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	size, ok := sizeParam(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_SIZE", "size must look like 200x200")
	}
	th, err := h.status.GetStatus(c.UserContext(), id, size, owns(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(th)
}

// ThumbnailFile streams a ready variant.
//
// @Summary  Download thumbnail
// @Tags     thumbnails
// @Produce  image/jpeg
// @Param    X-Owner-ID header string true "Owner"
// @Param    id         path   string true "Image ID"
// @Param    size       path   string true "Size, e.g. 200x200"
// @Success  200 {file} binary
// @Failure  409 {object} errorPayload
// @Router   /images/{id}/thumbnails/{size}/file [get]
func (h *ImageHandler) ThumbnailFile(c *fiber.Ctx) error {
	id, ok := imageID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	size, ok := sizeParam(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_SIZE", "size must look like 200x200")
	}
	rc, info, err := h.status.OpenVariant(c.UserContext(), id, size, owns(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	ct := info.ContentType
	if ct == "" {
		ct = "image/jpeg"
	}
	c.Set(fiber.HeaderContentType, ct)
	// fasthttp closes rc once the body is written.
	return c.SendStream(rc, int(info.Size))
}

// RetryThumbnail regenerates a failed size.
//
// @Summary  Retry failed thumbnail
// @Tags     thumbnails
// @Produce  json
// @Param    X-Owner-ID header string true "Owner"
// @Param    id         path   string true "Image ID"
// @Param    size       path   string true "Size, e.g. 200x200"
// @Success  202 {object} model.Thumbnail
// @Failure  409 {object} errorPayload
// @Router   /images/{id}/thumbnails/{size}/retry [post]
func (h *ImageHandler) RetryThumbnail(c *fiber.Ctx) error {
	id, ok := imageID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	size, ok := sizeParam(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_SIZE", "size must look like 200x200")
	}
	th, err := h.images.RetryThumbnail(c.UserContext(), id, size, owns(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(th)
}
