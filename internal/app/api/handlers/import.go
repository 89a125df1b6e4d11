package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/csvimport"
	"github.com/fatflowers/rentpay/pkg/response"
)

// maxImportBytes bounds an uploaded statement.
const maxImportBytes = 10 << 20

type StatementImporter interface {
	Import(ctx context.Context, ownerID string, r io.Reader) (*csvimport.Result, error)
	ImportXLSX(ctx context.Context, ownerID string, r io.Reader) (*csvimport.Result, error)
}

// @Summary      Import statement
// @Description  Imports a provider statement export (.csv or .xlsx). Known receipts are skipped.
// @Tags         Transactions
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Statement file"
// @Success      200  {object}  handlers.RespImport
// @Router       /api/v1/mpesa/import [post]
func ApiImportStatement(imp StatementImporter, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, errors.New("multipart field \"file\" is required"))
			return
		}
		if fh.Size > maxImportBytes {
			badRequest(c, errors.New("statement file is larger than 10MB"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, log, err)
			return
		}
		defer func() { _ = f.Close() }()

		owner := mw.OwnerID(c)
		var res *csvimport.Result
		switch strings.ToLower(filepath.Ext(fh.Filename)) {
		case ".xlsx":
			res, err = imp.ImportXLSX(c.Request.Context(), owner, f)
		case ".csv", ".txt", "":
			res, err = imp.Import(c.Request.Context(), owner, f)
		default:
			badRequest(c, errors.New("statement must be a .csv or .xlsx file"))
			return
		}
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterImportRoutes(r gin.IRouter, imp StatementImporter, log *zap.SugaredLogger) {
	r.POST("/import", ApiImportStatement(imp, log))
}
