package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"memewrangler/internal/meme"
	"memewrangler/internal/transport"
)

// Method is a channel client send call.
type Method string

const (
	MethodVideo    Method = "video"
	MethodPhoto    Method = "photo"
	MethodDocument Method = "document"
	MethodFetch    Method = "fetch"
)

// Attempt records one step of a delivery chain.
type Attempt struct {
	Method   Method
	Reupload bool
	Err      error
}

// Outcome is the full trace of one delivery.
type Outcome struct {
	Attempts  []Attempt
	Delivered bool
}

// Final returns the successful attempt, or the last failed one.
func (o Outcome) Final() (Attempt, bool) {
	if len(o.Attempts) == 0 {
		return Attempt{}, false
	}
	return o.Attempts[len(o.Attempts)-1], true
}

// Err is nil when delivered; otherwise the last failure as a delivery error.
func (o Outcome) Err() error {
	if o.Delivered {
		return nil
	}
	last, ok := o.Final()
	if !ok || last.Err == nil {
		return meme.Delivery("deliver", errors.New("no delivery attempted"))
	}
	return meme.Delivery(string(last.Method), last.Err)
}

// Request describes what to send and where.
type Request struct {
	To      transport.Destination
	ID      int64
	Ref     string
	Mime    meme.MimeClass
	Caption string
	// Reupload enables the fetch-and-upload tier after direct sends fail.
	Reupload bool
}

type strategy struct {
	method   Method
	reupload bool
	fileName string
}

// directChain is the by-reference order: video records try video first and
// fall through to the image chain.
func directChain(m meme.MimeClass) []strategy {
	if m == meme.MimeVideo {
		return []strategy{{method: MethodVideo}, {method: MethodPhoto}, {method: MethodDocument}}
	}
	return []strategy{{method: MethodPhoto}, {method: MethodDocument}}
}

func reuploadChain(m meme.MimeClass, id int64) []strategy {
	if m == meme.MimeVideo {
		return []strategy{{method: MethodVideo, reupload: true, fileName: fmt.Sprintf("meme_%d.mp4", id)}}
	}
	return []strategy{
		{method: MethodPhoto, reupload: true, fileName: fmt.Sprintf("meme_%d.jpg", id)},
		{method: MethodDocument, reupload: true, fileName: fmt.Sprintf("meme_%d", id)},
	}
}

// Deliverer runs delivery chains against a channel client.
type Deliverer struct {
	client  transport.MediaClient
	limiter *rate.Limiter
	timeout time.Duration
}

// NewDeliverer builds a deliverer. perSecond <= 0 disables rate limiting;
// timeout <= 0 disables the per-send deadline.
func NewDeliverer(client transport.MediaClient, perSecond float64, timeout time.Duration) *Deliverer {
	d := &Deliverer{client: client, timeout: timeout}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return d
}

func (d *Deliverer) Deliver(ctx context.Context, req Request) Outcome {
	var out Outcome
	for _, s := range directChain(req.Mime) {
		if d.try(ctx, &out, req, s, transport.Media{Ref: req.Ref}) {
			return out
		}
	}
	if !req.Reupload {
		return out
	}

	data, err := d.fetch(ctx, req.Ref)
	if err != nil {
		out.Attempts = append(out.Attempts, Attempt{Method: MethodFetch, Reupload: true, Err: err})
		return out
	}
	for _, s := range reuploadChain(req.Mime, req.ID) {
		if d.try(ctx, &out, req, s, transport.Media{Data: data, FileName: s.fileName}) {
			return out
		}
	}
	return out
}

func (d *Deliverer) try(ctx context.Context, out *Outcome, req Request, s strategy, m transport.Media) bool {
	err := d.send(ctx, s.method, req.To, m, req.Caption)
	out.Attempts = append(out.Attempts, Attempt{Method: s.method, Reupload: s.reupload, Err: err})
	if err == nil {
		out.Delivered = true
		return true
	}
	return false
}

func (d *Deliverer) send(ctx context.Context, method Method, to transport.Destination, m transport.Media, caption string) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	switch method {
	case MethodVideo:
		return d.client.SendVideo(ctx, to, m, caption)
	case MethodPhoto:
		return d.client.SendPhoto(ctx, to, m, caption)
	case MethodDocument:
		return d.client.SendDocument(ctx, to, m, caption)
	default:
		return fmt.Errorf("unknown send method %q", method)
	}
}

func (d *Deliverer) fetch(ctx context.Context, ref string) ([]byte, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 4*d.timeout)
		defer cancel()
	}
	data, err := d.client.FetchFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("fetched file is empty")
	}
	return data, nil
}
