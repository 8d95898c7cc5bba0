package seed

import "github.com/vedant-vijay/community-platform/internal/domain"

var sampleUsers = []domain.User{
	{
		ID:    "user1",
		Name:  "Alex Thompson",
		Email: "alex@example.com",
		Bio:   "Full-stack developer passionate about creating innovative solutions. Love working with React, Node.js, and cloud technologies. Always learning and sharing knowledge with the community.",
	},
	{
		ID:    "user2",
		Name:  "Sarah Chen",
		Email: "sarah@example.com",
		Bio:   "Product Manager with 8+ years of experience in tech startups. Helping teams build products that users love. Advocate for user-centered design and data-driven decisions.",
	},
	{
		ID:    "user3",
		Name:  "Marcus Johnson",
		Email: "marcus@example.com",
		Bio:   "UI/UX Designer crafting beautiful and intuitive digital experiences. Specialized in mobile app design and user research. Coffee enthusiast and design system advocate.",
	},
	{
		ID:    "user4",
		Name:  "Emily Rodriguez",
		Email: "emily@example.com",
		Bio:   "Data Scientist turning complex data into actionable insights. Expertise in machine learning, Python, and data visualization. Passionate about using data to solve real-world problems.",
	},
	{
		ID:    "user5",
		Name:  "David Kim",
		Email: "david@example.com",
		Bio:   "DevOps Engineer automating and optimizing development workflows. Expert in AWS, Docker, and Kubernetes. Believer in continuous integration and deployment best practices.",
	},
}

var samplePosts = []domain.NewPost{
	{
		AuthorID:   "user1",
		AuthorName: "Alex Thompson",
		Content:    "Just launched our new mobile app! 🚀 It's been an incredible journey working with an amazing team. The app focuses on helping remote teams stay connected and productive. Can't wait to see how the community uses it!",
	},
	{
		AuthorID:   "user2",
		AuthorName: "Sarah Chen",
		Content:    "Great discussion at today's product strategy meeting! We're implementing user feedback from our latest feature release. It's amazing how much insight we can gain from listening to our users. Building in public really works! 💡",
	},
	{
		AuthorID:   "user3",
		AuthorName: "Marcus Johnson",
		Content:    "Working on a new design system for our company. The goal is to create consistent, accessible, and beautiful components that our entire team can use. Design systems are truly game-changers for product development! 🎨",
	},
	{
		AuthorID:   "user4",
		AuthorName: "Emily Rodriguez",
		Content:    "Fascinating insights from our latest A/B test results! Our new onboarding flow increased user retention by 23%. Data-driven decisions really make a difference. Always test your assumptions! 📊",
	},
	{
		AuthorID:   "user5",
		AuthorName: "David Kim",
		Content:    "Successfully migrated our entire infrastructure to Kubernetes! The deployment process is now 3x faster and much more reliable. The learning curve was steep, but totally worth it. DevOps automation FTW! ⚙️",
	},
	{
		AuthorID:   "user1",
		AuthorName: "Alex Thompson",
		Content:    "Attended an amazing conference on emerging web technologies today. The keynote on WebAssembly was mind-blowing! The future of web development looks incredibly exciting. Can't wait to experiment with these new tools! 🌐",
	},
	{
		AuthorID:   "user2",
		AuthorName: "Sarah Chen",
		Content:    "Mentoring junior developers has been one of the most rewarding parts of my career. Seeing them grow and solve complex problems independently is just incredible. The tech community is amazing! 👥",
	},
	{
		AuthorID:   "user3",
		AuthorName: "Marcus Johnson",
		Content:    "User research session revealed some surprising insights about how people interact with our interface. Sometimes what we think is intuitive isn't always the case. User testing saves the day again! 🔍",
	},
	{
		AuthorID:   "user4",
		AuthorName: "Emily Rodriguez",
		Content:    "Machine learning model deployment was successful! Our recommendation engine is now serving personalized content to over 100k users. The impact on engagement metrics has been phenomenal. AI is transforming everything! 🤖",
	},
	{
		AuthorID:   "user5",
		AuthorName: "David Kim",
		Content:    "Implemented automated testing for our CI/CD pipeline. Build failures are now caught instantly, and deployments are rock solid. Automation isn't just about efficiency—it's about confidence and reliability! ✅",
	},
}
