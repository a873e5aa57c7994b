package template

import (
	"fmt"
	"regexp"
	"strings"

	"gitee.com/flycash/notify-center/internal/errs"
)

// 模板变量占位符，形如 ${name}
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Render 最小变量替换渲染
// 严格未定义语义：引用了未提供的变量直接报错，而不是静默输出空白
func Render(text string, vars map[string]string) (string, error) {
	var missing []string
	res := placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: 缺少变量 %s", errs.ErrTemplateRenderFailed, strings.Join(missing, ", "))
	}
	return res, nil
}

// MergeVars 按优先级合并变量：defaults < context < explicit
func MergeVars(defaults, context, explicit map[string]string) map[string]string {
	res := make(map[string]string, len(defaults)+len(context)+len(explicit))
	for k, v := range defaults {
		res[k] = v
	}
	for k, v := range context {
		res[k] = v
	}
	for k, v := range explicit {
		res[k] = v
	}
	return res
}
