package bot

import (
	"bytes"
	"fmt"

	"github.com/yeqown/go-qrcode"
)

// renderQR encodes content as a PNG QR code.
func renderQR(content string) (*bytes.Buffer, error) {
	qrc, err := qrcode.New(content,
		qrcode.WithQRWidth(7),
		qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT),
	)
	if err != nil {
		return nil, fmt.Errorf("create qr code: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := qrc.SaveTo(buf); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return buf, nil
}
