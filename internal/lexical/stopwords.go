package lexical

// IsStopword reports whether word (already lowercased) is in the stopword list.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

// stopwords covers English and Russian function words longer than two
// characters. Shorter words never reach the lookup.
var stopwords = buildStopwords(
	// English
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
	"had", "her", "was", "one", "our", "out", "has", "have", "him", "his",
	"how", "its", "may", "new", "now", "old", "see", "two", "who", "did",
	"get", "got", "let", "put", "say", "she", "too", "use", "yes", "yet",
	"also", "been", "from", "into", "just", "like", "more", "most", "much",
	"must", "only", "over", "said", "same", "some", "such", "than", "that",
	"them", "then", "there", "these", "they", "this", "those", "very",
	"what", "when", "where", "which", "while", "will", "with", "would",
	"your", "about", "after", "again", "being", "below", "between", "both",
	"could", "does", "doing", "down", "during", "each", "few", "further",
	"here", "hers", "herself", "himself", "itself", "myself", "off", "once",
	"other", "ours", "ourselves", "own", "should", "their", "theirs",
	"themselves", "through", "under", "until", "were", "whom", "why",
	"yours", "yourself", "yourselves", "because", "before", "above",
	"against", "were", "isn", "aren", "wasn", "weren", "don", "doesn",
	"didn", "won", "wouldn", "cannot", "shall", "upon", "even",
	"well", "back", "still", "ever", "every", "something", "nothing",
	"anything", "everything", "thing", "things", "really", "maybe",
	"though", "although", "whether", "within", "without", "onto", "across",
	// Russian
	"что", "как", "это", "все", "она", "так", "его", "только", "был",
	"была", "были", "было", "быть", "уже", "вот", "нет", "для", "мне",
	"меня", "тебя", "тебе", "себя", "себе", "они", "оно", "мой",
	"моя", "мое", "мои", "твой", "твоя", "ваш", "наш", "если", "или",
	"когда", "даже", "ничего", "ему", "теперь", "тогда", "тут", "там",
	"где", "есть", "надо", "ней", "них", "чем", "чтобы", "без", "будет",
	"может", "можно", "при", "про", "под", "над", "через", "после",
	"перед", "потом", "очень", "этот", "эта", "эти", "тот", "та", "те",
	"того", "этого", "этой", "кто", "куда", "зачем", "почему", "всех",
	"всё", "еще", "ещё", "тоже", "также", "просто", "какой", "какая",
	"какие", "свой", "своя", "свои", "нас", "вас", "ним", "нему", "ней",
	"раз", "два", "три", "здесь", "сейчас", "опять", "куда", "ведь",
	"вдруг", "разве", "хоть", "хотя", "чего", "чему", "сам", "сама",
	"сами", "само", "один", "одна", "одно", "которые", "который",
	"которая", "которое",
)

func buildStopwords(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
