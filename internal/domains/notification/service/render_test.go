package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderStringSubstitution(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		variables map[string]interface{}
		expected  string
	}{
		{
			name:      "simple substitution",
			template:  "Hello {{name}}, your order {{orderId}} is filled",
			variables: map[string]interface{}{"name": "Alice", "orderId": "ORD-42"},
			expected:  "Hello Alice, your order ORD-42 is filled",
		},
		{
			name:      "missing variable renders empty",
			template:  "Hi {{name}}{{missing}}!",
			variables: map[string]interface{}{"name": "Bob"},
			expected:  "Hi Bob!",
		},
		{
			name:      "whitespace inside braces",
			template:  "{{ symbol }} at {{ price }}",
			variables: map[string]interface{}{"symbol": "BTCUSD", "price": 65000.5},
			expected:  "BTCUSD at 65000.5",
		},
		{
			name:      "integral float renders without decimal point",
			template:  "qty {{qty}}",
			variables: map[string]interface{}{"qty": float64(10)},
			expected:  "qty 10",
		},
		{
			name:      "stringer values",
			template:  "amount {{amount}}",
			variables: map[string]interface{}{"amount": decimal.NewFromFloat(12.34)},
			expected:  "amount 12.34",
		},
		{
			name:      "no placeholders passes through",
			template:  "static text",
			variables: map[string]interface{}{"unused": "x"},
			expected:  "static text",
		},
		{
			name:      "nil variable renders empty",
			template:  "x{{v}}y",
			variables: map[string]interface{}{"v": nil},
			expected:  "xy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderString(tt.template, tt.variables))
		})
	}
}
