package detector

import (
	"regexp"
	"strings"
)

// 事实抽取上限，避免对搜索提供商产生过多请求
const maxKeyFacts = 5

// 可验证要素的抽取模式（人名、机构、日期、数字、地名）
var (
	personPattern   = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)
	orgPattern      = regexp.MustCompile(`\b[A-Z][a-zA-Z\s]*(?:Inc|Corp|Company|Organization|Agency)\b`)
	datePattern     = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}\b|\b[A-Z][a-z]+ \d{1,2}, \d{4}\b`)
	numberPattern   = regexp.MustCompile(`\b\d+(?:,\d{3})*(?:\.\d+)?(?:%|percent|million|billion|thousand)?`)
	locationPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)*\b`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+`)
)

// 首字母大写但并非地名的常见词
var locationStopwords = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "These": {}, "Those": {},
	"And": {}, "But": {}, "Or": {}, "So": {},
}

// ExtractKeyFacts 从断言中抽取待验证的关键事实。
// 依次抽取人名、机构、日期、数字统计和地名（地名最多 3 个以控制噪声）；
// 一个要素都没命中时退化为按句子切分，整体上限 5 条。
func ExtractKeyFacts(claim string) []string {
	var facts []string

	for _, person := range personPattern.FindAllString(claim, -1) {
		facts = append(facts, "person: "+person)
	}
	for _, org := range orgPattern.FindAllString(claim, -1) {
		facts = append(facts, "organization: "+org)
	}
	for _, date := range datePattern.FindAllString(claim, -1) {
		facts = append(facts, "date: "+date)
	}
	for _, num := range numberPattern.FindAllString(claim, -1) {
		if len(num) > 2 {
			facts = append(facts, "statistic: "+num)
		}
	}

	locCount := 0
	for _, loc := range locationPattern.FindAllString(claim, -1) {
		if locCount >= 3 {
			break
		}
		if _, ok := locationStopwords[loc]; ok || len(loc) <= 3 {
			continue
		}
		facts = append(facts, "location: "+loc)
		locCount++
	}

	if len(facts) == 0 {
		for _, sent := range sentenceSplit.Split(claim, -1) {
			sent = strings.TrimSpace(sent)
			if len(sent) > 10 {
				facts = append(facts, sent)
			}
		}
	}

	if len(facts) > maxKeyFacts {
		facts = facts[:maxKeyFacts]
	}
	return facts
}
