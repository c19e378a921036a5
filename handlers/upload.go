package handlers

import (
	"net/http"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gin-gonic/gin"
)

// UploadHandler stores message attachments in Cloudinary and hands back the
// hosted URL for the client to reference in a send.
type UploadHandler struct {
	cloudinaryURL string
}

func NewUploadHandler(cloudinaryURL string) *UploadHandler {
	return &UploadHandler{cloudinaryURL: cloudinaryURL}
}

func (h *UploadHandler) Upload(c *gin.Context) {
	if h.cloudinaryURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads not configured"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer src.Close()

	cld, err := cloudinary.NewFromURL(h.cloudinaryURL)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := cld.Upload.Upload(ctx, src, uploader.UploadParams{
		Folder: "wellnest/attachments",
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": result.SecureURL})
}
