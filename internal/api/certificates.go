package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetCertificate returns a certificate by its identifier.
// (GET /api/v2/certificates/:certificado_id)
func (s *Server) GetCertificate(c echo.Context) error {
	cert, err := s.Repo.GetCertificate(c.Request().Context(), c.Param("certificado_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cert)
}

// VerifyCertificate runs the integrity check for a certificate. An unknown
// certificate is a 200 with exists=false, not a 404: verification is the
// public tamper-evidence surface and its answer is the verdict itself.
// (GET /api/v2/certificates/:certificado_id/verify)
func (s *Server) VerifyCertificate(c echo.Context) error {
	result, err := s.Verifier.Verify(c.Request().Context(), c.Param("certificado_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetAuditTrail reconstructs the stage timeline and audit events for a
// request.
// (GET /api/v2/audit/trail/:request_id)
func (s *Server) GetAuditTrail(c echo.Context) error {
	trail, err := s.Trail.Build(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, trail)
}

// SignHashRequest is the request body for notarizing an arbitrary hash.
type SignHashRequest struct {
	Hash string `json:"hash"`
}

// SignHashResponse carries the detached signature over a hash.
type SignHashResponse struct {
	Hash      string `json:"hash"`
	Signature string `json:"firma_digital"`
}

// SignHash signs a hex-encoded hash with the configured signing key.
// (POST /api/v2/sign/hash)
func (s *Server) SignHash(c echo.Context) error {
	if s.Signer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no signing key configured")
	}

	var body SignHashRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if body.Hash == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "hash is required")
	}

	signature, err := s.Signer.Sign(body.Hash)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, SignHashResponse{Hash: body.Hash, Signature: signature})
}
