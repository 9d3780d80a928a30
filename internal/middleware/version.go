package middleware

import (
	"github.com/labstack/echo/v4"
)

// APIVersion is the version of the HTTP contract. Bump it on breaking
// changes to request or response shapes, independently of the build.
const APIVersion = "v1"

const (
	HeaderAPIVersion   = "X-API-Version"
	HeaderBuildVersion = "X-Build-Version"
)

// VersionHeader stamps every response with the API contract and build versions.
func VersionHeader(build string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Set(HeaderAPIVersion, APIVersion)
			if build != "" {
				header.Set(HeaderBuildVersion, build)
			}
			return next(c)
		}
	}
}
