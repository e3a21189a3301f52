package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	base := ElementNotFound("rack-7")
	wrapped := fmt.Errorf("select failed: %w", base)

	require.True(t, IsCode(wrapped, CodeNotFound))
	require.False(t, IsCode(wrapped, CodeInternal))
	require.Equal(t, CodeNotFound, CodeOf(wrapped))
	require.Equal(t, WireAssetNotFound, WireReason(wrapped))
}

func TestReasonUsesMessageOnly(t *testing.T) {
	err := Wrap(errors.New("pq: broken pipe"), CodeInternal, "Internal error")

	require.Equal(t, "Internal error", Reason(err))
	require.Equal(t, "internal: Internal error: pq: broken pipe", err.Error())
	require.Equal(t, WireInternalError, WireReason(err))
	require.Equal(t, "plain", Reason(errors.New("plain")))
	require.Empty(t, Reason(nil))
}

func TestTaxonomyConstructors(t *testing.T) {
	require.Equal(t, "Element 'dev1' not found.", ElementNotFound("dev1").Message)
	require.Equal(t, CodeParamRequired, ParamRequired("name").Code)
	require.Equal(t, "name", ParamRequired("name").Meta["field"])
	require.Equal(t, CodeBadRequestDocument, BadRequestDocument("csv").Code)

	ex := ExceptionForElement("ups-1", New(CodeInternal, "boom"))
	require.Equal(t, CodeExceptionForElement, ex.Code)
	require.Contains(t, ex.Message, "ups-1")
	require.Contains(t, ex.Message, "boom")
}
