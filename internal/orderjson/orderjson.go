// Package orderjson reads create requests and writes orders as JSON.
//
// Prices are taken from the raw JSON number text, so a price such as 19.995
// reaches order.PriceToCents exactly rather than through a float64.
package orderjson

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
)

// Decode streams a JSON array of create requests from r, calling fn for each
// element in order. Decoding stops at the first error returned by fn.
//
//	[{"email": "a@example.com", "gateway": "stripe", "gateway_ref": "pi_1",
//	  "totals": {"order_ref": "ORD-1", "subtotal": 1999, "tax": 0, "shipping": 0, "total": 1999},
//	  "lines": [{"sku": "SKU-1", "title": "Beans", "price": 19.99, "qty": 1}]}]
//
// Unknown fields are ignored.
func Decode(r io.Reader, fn func(order.CreateRequest) error) error {
	d := jx.Decode(r, 64*1024)
	return d.Arr(func(d *jx.Decoder) error {
		var req order.CreateRequest
		if err := decodeRequest(d, &req); err != nil {
			return err
		}
		return fn(req)
	})
}

func decodeRequest(d *jx.Decoder, req *order.CreateRequest) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			req.Email, err = optStr(d)
		case "gateway":
			req.Gateway, err = optStr(d)
		case "gateway_ref":
			req.GatewayRef, err = optStr(d)
		case "totals":
			err = decodeTotals(d, &req.Totals)
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				var l order.Line
				if err := decodeLine(d, &l); err != nil {
					return err
				}
				req.Lines = append(req.Lines, l)
				return nil
			})
		default:
			err = d.Skip()
		}
		return wrapField(err, "field", key)
	})
}

func decodeTotals(d *jx.Decoder, t *order.Totals) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_ref":
			t.Ref, err = d.Str()
		case "subtotal":
			t.Subtotal, err = d.Int64()
		case "tax":
			t.Tax, err = d.Int64()
		case "shipping":
			t.Shipping, err = d.Int64()
		case "total":
			t.Total, err = d.Int64()
		default:
			err = d.Skip()
		}
		return wrapField(err, "totals", key)
	})
}

func decodeLine(d *jx.Decoder, l *order.Line) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sku":
			l.SKU, err = d.Str()
		case "title":
			l.Title, err = d.Str()
		case "price":
			l.Price, err = decodePrice(d)
		case "qty":
			l.Qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return wrapField(err, "line", key)
	})
}

func wrapField(err error, scope, key string) error {
	if err != nil {
		return errors.Wrapf(err, "%s %q", scope, key)
	}
	return nil
}

// decodePrice accepts a JSON number or a numeric string.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var text string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		text = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		text = n.String()
	}
	price, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse price %q", text)
	}
	return price, nil
}

// optStr reads a string, treating null as empty.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// EncodeOrders writes orders to w as a JSON array. Absent gateway fields are
// written as null.
func EncodeOrders(w io.Writer, orders []order.Order) error {
	var e jx.Encoder
	e.SetIdent(2)
	e.ArrStart()
	for _, o := range orders {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(o.ID)
		e.FieldStart("order_ref")
		e.Str(o.Ref)
		e.FieldStart("email")
		e.Str(o.Email)
		e.FieldStart("subtotal_cents")
		e.Int64(o.SubtotalCents)
		e.FieldStart("tax_cents")
		e.Int64(o.TaxCents)
		e.FieldStart("shipping_cents")
		e.Int64(o.ShippingCents)
		e.FieldStart("total_cents")
		e.Int64(o.TotalCents)
		e.FieldStart("status")
		e.Str(string(o.Status))
		e.FieldStart("gateway")
		optEncode(&e, o.Gateway)
		e.FieldStart("gateway_ref")
		optEncode(&e, o.GatewayRef)
		e.FieldStart("created_at")
		e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
		e.ObjEnd()
	}
	e.ArrEnd()

	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

func optEncode(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return gzErr
}

// Open opens path for reading, decompressing it when the name ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	if filepath.Ext(path) != ".gz" {
		return f, nil
	}

	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "gzip reader")
	}
	return gzipFile{Reader: gz, f: f}, nil
}
