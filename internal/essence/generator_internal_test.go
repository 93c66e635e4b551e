package essence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_NewGenerator_Defaults_To_Fixed_Retry_Policy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 63*time.Second, DefaultRetryDelay)
	assert.Equal(t, 3, DefaultMaxRetries)

	g := NewGenerator(nil, NewLimiter(1))
	assert.Equal(t, DefaultRetryDelay, g.retryDelay)
	assert.Equal(t, uint64(DefaultMaxRetries), g.maxRetries)
}
