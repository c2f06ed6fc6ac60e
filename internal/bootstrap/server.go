package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/ewamal/bulk-data-import-export/internal/application/exporting"
	"github.com/ewamal/bulk-data-import-export/internal/application/importing"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/repository"
	httpecho "github.com/ewamal/bulk-data-import-export/internal/interfaces/http/echo"
)

// NewHTTPServer assembles the echo server: job creation and status
// endpoints backed by db, streaming and file downloads backed by exporter
// and exportDir.
func NewHTTPServer(db *gorm.DB, exporter *exporting.Exporter, exportDir string) *echo.Echo {
	server := echo.New()
	server.HideBanner = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit("10M"))

	jobRepo := repository.NewJobRepository(db)

	importHandler := httpecho.NewImportHandler(
		importing.NewCreateImportJob(jobRepo),
		importing.NewGetImportJob(jobRepo),
	)
	exportHandler := httpecho.NewExportHandler(
		exporting.NewCreateExportJob(jobRepo),
		exporting.NewGetExportJob(jobRepo),
		exporter,
		exportDir,
	)

	httpecho.RegisterRoutes(server, importHandler, exportHandler)

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	return server
}
