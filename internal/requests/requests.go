// Package requests is a small fasthttp-backed HTTP client used for the
// handful of REST calls the kite package and the OAuth exchange make.
package requests

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
)

const defaultTimeout = 15 * time.Second

// Get issues a GET request with the given headers and returns the response
// body and status code.
func Get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	return do(ctx, fasthttp.MethodGet, url, headers, nil)
}

// PostForm issues a POST with an application/x-www-form-urlencoded body.
func PostForm(ctx context.Context, url string, headers map[string]string, form map[string]string) ([]byte, int, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	for k, v := range form {
		args.Set(k, v)
	}
	return do(ctx, fasthttp.MethodPost, url, headers, args)
}

func do(ctx context.Context, method, url string, headers map[string]string, form *fasthttp.Args) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBody(form.QueryString())
	}

	timeout := defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 && d < timeout {
			timeout = d
		}
	}

	client := &fasthttp.Client{}
	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return nil, 0, err
	}

	body := append([]byte(nil), resp.Body()...)
	return body, resp.StatusCode(), nil
}
