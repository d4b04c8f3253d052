package extraction

import (
	"fmt"
	"strings"
)

const systemPrompt = `你是一个数据提取助手。用户在表单的多个文本栏中填写了个人信息，请从中提取出结构化数据。
信息可能分散在「自我描述」「对活动的期望」「备注」等不同栏目中，请综合分析所有内容。
请严格按照 JSON 格式返回，不要添加任何其他文字或 markdown 标记。
如果用户明确表示「未知」「不想回答」「保密」「不方便说」等，请将该字段值设为用户的原始表述（如"不想回答"），而非 null。
只有当文本中完全没有提及某个字段时，才将该字段值设为 null。`

const expectationGuide = `对于 expectation 字段，请返回一个包含以下子字段的对象：
- relationship: 期待的关系类型
- age_range: 期待年龄范围
- personality: 期待性格
- location: 期待地区
- body_type: 期待体型
- appearance: 期待外貌
- habits: 期待生活习惯
- children: 对孩子的态度
- other: 其他期待`

const exampleReply = `{"marital_status": "单身", "health_condition": "健康", "housing_status": "租房", "dating_purpose": "寻找长期伴侣", "want_children": "可以考虑", "coming_out_status": "半出柜", "expectation": {"relationship": "长期伴侣", "age_range": "25-35", "personality": "温和", "location": "上海", "body_type": null, "appearance": null, "habits": null, "children": null, "other": null}}`

// BuildPrompt renders the user message for an extraction request
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("用户的基本资料：\n")
	fmt.Fprintf(&b, "姓名: %s\n", orUnknown(req.Name))
	fmt.Fprintf(&b, "性别: %s\n", orUnknown(req.Gender))
	if req.Age > 0 {
		fmt.Fprintf(&b, "年龄: %d\n", req.Age)
	} else {
		b.WriteString("年龄: 未知\n")
	}

	b.WriteString("\n用户在表单中填写的文本内容（可能分布在多个栏目）：\n\"\"\"\n")
	b.WriteString(req.Corpus)
	b.WriteString("\n\"\"\"\n\n请从上述所有文本中综合提取以下字段：\n")
	for _, f := range req.Missing {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Description)
	}

	b.WriteString("\n请返回 JSON 格式，字段名使用英文 key。\n")
	b.WriteString(expectationGuide)
	b.WriteString("\n\n示例返回格式：\n")
	b.WriteString(exampleReply)
	b.WriteString("\n\n只返回 JSON，不要有其他任何内容。")

	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "未知"
	}
	return s
}
