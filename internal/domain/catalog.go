package domain

// DefaultCatalog is the built-in set of ten trivia items.
func DefaultCatalog() []CatalogItem {
	return []CatalogItem{
		{ID: "capital-france", Prompt: "What is the capital of France?", Options: []string{"London", "Berlin", "Paris", "Madrid"}, CorrectAnswer: "Paris"},
		{ID: "two-plus-two", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4"},
		{ID: "red-planet", Prompt: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectAnswer: "Mars"},
		{ID: "largest-ocean", Prompt: "What is the largest ocean on Earth?", Options: []string{"Atlantic Ocean", "Indian Ocean", "Arctic Ocean", "Pacific Ocean"}, CorrectAnswer: "Pacific Ocean"},
		{ID: "mona-lisa", Prompt: "Who painted the Mona Lisa?", Options: []string{"Vincent van Gogh", "Pablo Picasso", "Leonardo da Vinci", "Michelangelo"}, CorrectAnswer: "Leonardo da Vinci"},
		{ID: "gold-symbol", Prompt: "What is the chemical symbol for gold?", Options: []string{"Ag", "Fe", "Au", "Cu"}, CorrectAnswer: "Au"},
		{ID: "ww2-end", Prompt: "In which year did World War II end?", Options: []string{"1944", "1945", "1946", "1947"}, CorrectAnswer: "1945"},
		{ID: "smallest-country", Prompt: "What is the smallest country in the world?", Options: []string{"Monaco", "Vatican City", "San Marino", "Liechtenstein"}, CorrectAnswer: "Vatican City"},
		{ID: "speed-of-light", Prompt: "What is the speed of light?", Options: []string{"299,792,458 m/s", "150,000,000 m/s", "1,000,000,000 m/s", "500,000,000 m/s"}, CorrectAnswer: "299,792,458 m/s"},
		{ID: "romeo-juliet", Prompt: "Who wrote 'Romeo and Juliet'?", Options: []string{"Charles Dickens", "William Shakespeare", "Jane Austen", "Mark Twain"}, CorrectAnswer: "William Shakespeare"},
	}
}
