package handlers

import (
	stderrors "errors"
	"net/http"

	v1 "upscaled/internal/contracts/upscale/v1"
	"upscaled/internal/httpkit"
	"upscaled/internal/pkg/errors"
	"upscaled/internal/upscale"
	"upscaled/internal/upscaler"
)

// bodyLimit is the JSON body cap for an original of maxUpload bytes, which
// travels base64 encoded.
func bodyLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		return 0
	}
	return maxUpload/3*4 + 8 + 64<<10
}

func (h *Handler) decodeUpscaleRequest(w http.ResponseWriter, r *http.Request) (*v1.UpscaleRequest, upscale.Descriptor, error) {
	var req v1.UpscaleRequest
	if err := httpkit.DecodeJSON(w, r, bodyLimit(h.maxUpload), &req); err != nil {
		if stderrors.Is(err, httpkit.ErrBodyTooLarge) {
			return nil, upscale.Descriptor{}, errors.WrapWithCode(err, errors.CodeTooLarge, "http.decode", "request body too large")
		}
		return nil, upscale.Descriptor{}, errors.WrapWithCode(err, errors.CodeValidation, "http.decode", "invalid json body")
	}
	if h.maxUpload > 0 && int64(len(req.OriginalFile)) > h.maxUpload {
		return nil, upscale.Descriptor{}, errors.New(errors.CodeTooLarge, "original_file too large").
			WithField("max_bytes", h.maxUpload)
	}

	desc, err := req.Validate()
	if err != nil {
		return nil, upscale.Descriptor{}, err
	}
	return &req, desc, nil
}

// PostUpscale runs one job and waits for it. The job keeps running if the
// client goes away.
func (h *Handler) PostUpscale(w http.ResponseWriter, r *http.Request) error {
	req, desc, err := h.decodeUpscaleRequest(w, r)
	if err != nil {
		return err
	}

	res, err := h.upscaler.Upscale(r.Context(), upscaler.Request{
		Original:   req.OriginalFile,
		Ext:        req.OriginalExt,
		Descriptor: desc,
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, v1.UpscaleResponse{
		Res:      v1.Resolution{Width: res.Res.Width, Height: res.Res.Height},
		Upscaled: res.Upscaled,
	})
	return nil
}
