package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitialize_ExportsToWriter(t *testing.T) {
	var out bytes.Buffer

	tel, err := Initialize("ssgberk-vm-test", "test", &out)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "render")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name": "render"`)
	assert.Contains(t, out.String(), "ssgberk-vm-test")
}
