package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

func TestAdmissionSourceString(t *testing.T) {
	assert.Equal(t, "smr", domain.SourceSMR.String())
	assert.Equal(t, "probe", domain.SourceProbe.String())
	assert.Equal(t, "local", domain.SourceLocal.String())
}
