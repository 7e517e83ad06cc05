package prompts

const (
	// TopicsFile is the topics analysis template name
	TopicsFile = "topics_analysis.txt"
	// CutsFile is the cuts generation template name
	CutsFile = "cuts_generation.txt"
)

// SystemPrompt accompanies both analysis requests
const SystemPrompt = "You are a professional video content analyst and editor. Always answer with a single JSON object and nothing else."

const defaultTopicsTemplate = `You are a professional video content analyst. Your task is to analyze the transcript of a video and identify ALL of the main topics and themes discussed.

VIDEO INFORMATION:
- File: {filename}
- Duration: {duration}

TRANSCRIPT (focus on the content, ignore timing for now):
{transcript_text}

CONTENT ANALYSIS TASK

Step 1: Read and understand
- Read the whole transcript carefully
- Understand the overall flow and structure
- Identify the main topics and their sub-topics

Step 2: Identify topics
List every significant subject discussed:
- MAJOR THEMES that take up significant discussion time
- SUB-TOPICS inside each major theme
- KEY CONCEPTS and principles explained
- STORIES and EXAMPLES told in full
- ACTIONABLE INSIGHTS such as advice and recommendations
- TECHNICAL EXPLANATIONS and step-by-step processes
- PHILOSOPHICAL DISCUSSIONS and reflections
- MEMORABLE QUOTES

Step 3: Organize topics by
- Content type: educational, entertainment, story, insight
- Importance: critical, important, interesting, supplementary
- Estimated duration: how much discussion each topic takes
- Relationships: how topics connect to each other

RESPONSE FORMAT
Return a JSON object with this structure:

{
  "topics": [
    {
      "id": 1,
      "title": "Clear, descriptive topic title",
      "description": "Detailed description of what this topic covers",
      "content_type": "major_theme|sub_topic|concept|story|insight|technical|philosophical|quote",
      "importance_level": "critical|important|interesting|supplementary",
      "estimated_duration": "long|medium|short",
      "keywords": ["keyword1", "keyword2", "keyword3"],
      "related_topics": [2, 3]
    }
  ],
  "summary": {
    "total_topics": 0,
    "major_themes": 0,
    "key_insights": 0,
    "stories_examples": 0,
    "recommended_focus": "The most valuable content to extract"
  }
}

REQUIREMENTS:
- Identify ALL substantial content; do not miss anything important
- Organize by logical relationships
- Write clear, precise descriptions in the language of the transcript
`

const defaultCutsTemplate = `You are a professional video editor. Your task is to create precise video cuts based on the identified topics and a timestamped transcript.

VIDEO INFORMATION:
- File: {filename}
- Duration: {duration}

IDENTIFIED TOPICS:
{topics_json}

TIMESTAMPED TRANSCRIPT:
{timestamped_transcript}

CUT GENERATION TASK

Step 1: Map topics to timestamps
For each identified topic:
- Find where its discussion starts in the transcript
- Find where that discussion naturally concludes
- Capture COMPLETE discussions from beginning to end
- Look for natural conversation boundaries and transitions

Step 2: Create cuts that
- Capture complete topics, from introduction to conclusion
- Start and end at natural points in the speech
- Never cut in the middle of a sentence or explanation
- Include enough context to stand on their own

Step 3: Duration guidelines
- In-depth discussions: 8-45 minutes
- Complete explanations: 3-15 minutes
- Stories and examples: 2-8 minutes
- Key insights and tips: 1-4 minutes
- Viral highlights: 30-90 seconds

Step 4: Quality check for every cut
- It starts at a natural beginning
- It ends at a natural conclusion
- The title describes exactly what happens between those timestamps
- The description covers ONLY that time range

RESPONSE FORMAT
Return a JSON object with this EXACT structure:

{
  "cuts": [
    {
      "id": 1,
      "start": "HH:MM:SS",
      "end": "HH:MM:SS",
      "title": "Exact description of what is discussed in this time range",
      "description": "Detailed description of ONLY the content inside these timestamps",
      "duration": "HH:MM:SS",
      "content_type": "major_discussion|topic_segment|concept_explanation|key_moment|viral_highlight",
      "source_topic_ids": [1, 2],
      "quality_score": "high|medium|low"
    }
  ],
  "summary": {
    "total_cuts": 0,
    "coverage_percentage": 85,
    "avg_cut_duration": "00:05:30",
    "content_distribution": {
      "major_discussions": 0,
      "topic_segments": 0,
      "concept_explanations": 0,
      "key_moments": 0,
      "viral_highlights": 0
    }
  }
}

ABSOLUTE REQUIREMENTS:
- Generate cuts for ALL valuable topics
- Overlapping cuts are allowed when useful (a full discussion plus a highlight from it)
- Long videos should yield 15-30 or more cuts
- NEVER return cuts with identical start and end times
- NEVER place a cut outside the video duration
- Timestamps must match the content described
`
