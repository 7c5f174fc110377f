package main

import (
	"embed"
	"io/fs"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
)

//go:embed static
var staticFiles embed.FS

// getFileSystem serves dir from disk when set, the embedded UI otherwise.
func getFileSystem(dir string) http.FileSystem {
	if dir != "" {
		return http.FS(os.DirFS(dir))
	}

	fsys, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	return http.FS(fsys)
}

func registerStaticHandler(e *echo.Echo, dir string) {
	assetHandler := http.FileServer(getFileSystem(dir))
	e.GET("/", echo.WrapHandler(assetHandler))
}
